package metricsync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// BatchResult summarizes one batch sync run.
type BatchResult struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Results   []*Result `json:"results"`
}

// SyncAll syncs every sync-enabled metric in dependency order: legacy
// external metrics first, then windowed data-source metrics, then calculated
// metrics, so formulas referencing other metrics see values from this run.
// A throttle delay is enforced between metrics to stay inside provider rate
// limits. Rollup metrics are excluded; they are recomputed by their own job.
func (p *Processor) SyncAll(ctx context.Context, throttle time.Duration) (*BatchResult, error) {
	ctx, span := p.tracer.Start(ctx, "metricsync.sync_all")
	defer span.End()

	metrics, err := p.store.ListSyncEnabledMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync-enabled metrics: %w", err)
	}

	var legacy, windowed, calculated []*models.Metric
	for _, metric := range metrics {
		switch ResolveStrategy(metric) {
		case StrategyLegacyExternal:
			legacy = append(legacy, metric)
		case StrategySingleWindow, StrategyMultiWindow:
			windowed = append(windowed, metric)
		case StrategyCalculated:
			calculated = append(calculated, metric)
		}
	}

	limiter := newThrottle(throttle)
	batch := &BatchResult{}

	for _, group := range [][]*models.Metric{legacy, windowed, calculated} {
		for _, metric := range group {
			if err := limiter.Wait(ctx); err != nil {
				return batch, err
			}
			result := p.SyncMetric(ctx, metric)
			batch.Results = append(batch.Results, result)
			batch.Total++
			if result.Success {
				batch.Succeeded++
			} else {
				batch.Failed++
			}
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"total":     batch.Total,
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
	}).Info("Batch metric sync completed")
	return batch, nil
}

// newThrottle builds a limiter spacing metric syncs by the given delay. The
// first metric is never delayed.
func newThrottle(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
