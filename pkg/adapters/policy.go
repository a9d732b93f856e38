package adapters

import (
	"context"
	"time"
)

// CallPolicy bounds every adapter call with a per-attempt timeout and retries
// failed attempts with multiplicative backoff. Provider calls previously had
// no timeout at the engine level; the policy closes that gap at the adapter
// boundary where the provider semantics are known.
type CallPolicy struct {
	Timeout           time.Duration `yaml:"timeout" env:"ADAPTER_TIMEOUT" default:"30s"`
	MaxRetries        int           `yaml:"max_retries" env:"ADAPTER_MAX_RETRIES" default:"2"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" env:"ADAPTER_RETRY_BACKOFF" default:"2s"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"ADAPTER_BACKOFF_MULTIPLIER" default:"2.0"`
}

// DefaultCallPolicy returns the policy used when none is configured.
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{
		Timeout:           30 * time.Second,
		MaxRetries:        2,
		RetryBackoff:      2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Do runs fn under the policy: each attempt gets its own timeout, and failed
// attempts are retried up to MaxRetries times with growing backoff. The last
// attempt's result is returned. Context cancellation stops retrying.
func (p CallPolicy) Do(ctx context.Context, fn func(ctx context.Context) SyncResult) SyncResult {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := p.RetryBackoff
	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	var result SyncResult
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result = fn(attemptCtx)
		cancel()

		if result.Success || attempt >= p.MaxRetries {
			return result
		}

		select {
		case <-ctx.Done():
			return Failure("adapter call cancelled: " + ctx.Err().Error())
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * multiplier)
	}
}
