// Package jobs exposes the engine's entry points: the scheduled full
// sync-and-scan, manually triggered per-metric syncs, standalone anomaly
// detection and rollup recomputation. The HTTP API and the cron scheduler
// both call through here.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/anomaly"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/metricsync"
)

// Config tunes job execution.
type Config struct {
	// Schedule is the cron expression for the periodic sync-and-scan run.
	Schedule string `yaml:"schedule" env:"JOBS_SCHEDULE" default:"*/15 * * * *"`
	// ThrottleDelay spaces consecutive metric syncs inside a batch.
	ThrottleDelay time.Duration `yaml:"throttle_delay" env:"JOBS_THROTTLE_DELAY" default:"500ms"`
}

// DefaultConfig returns the job defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:      "*/15 * * * *",
		ThrottleDelay: 500 * time.Millisecond,
	}
}

// SyncAndScanResult is the combined outcome of a scheduled run.
type SyncAndScanResult struct {
	Batch *metricsync.BatchResult `json:"batch"`
	Scan  *anomaly.ScanReport     `json:"scan"`
}

// ManualSyncResult is the outcome of a manually triggered per-metric sync,
// including the anomalies found in the follow-up scoped scan.
type ManualSyncResult struct {
	Sync      *metricsync.Result      `json:"sync"`
	Anomalies []*models.MetricAnomaly `json:"anomalies,omitempty"`
}

// Runner executes the engine's jobs.
type Runner struct {
	store     store.Store
	processor *metricsync.Processor
	detector  *anomaly.Detector
	config    Config
	logger    *logger.Logger
}

// NewRunner creates a job runner.
func NewRunner(st store.Store, processor *metricsync.Processor, detector *anomaly.Detector, config Config, log *logger.Logger) *Runner {
	return &Runner{
		store:     st,
		processor: processor,
		detector:  detector,
		config:    config,
		logger:    log,
	}
}

// ScheduledMetricSync is the periodic run: sync every sync-enabled metric,
// recompute rollups over the fresh values, then scan everything for
// anomalies.
func (r *Runner) ScheduledMetricSync(ctx context.Context) (*SyncAndScanResult, error) {
	batch, err := r.processor.SyncAll(ctx, r.config.ThrottleDelay)
	if err != nil {
		return nil, fmt.Errorf("batch sync failed: %w", err)
	}

	if _, err := r.processor.RecomputeAllRollups(ctx); err != nil {
		return nil, fmt.Errorf("rollup recompute failed: %w", err)
	}

	scan, err := r.detector.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("anomaly scan failed: %w", err)
	}
	return &SyncAndScanResult{Batch: batch, Scan: scan}, nil
}

// ManualMetricSync syncs one metric on demand and scans only that metric
// afterwards. Manual metrics are rejected before any work happens.
func (r *Runner) ManualMetricSync(ctx context.Context, metricID uuid.UUID) (*ManualSyncResult, error) {
	metric, err := r.store.GetMetric(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if metricsync.ResolveStrategy(metric) == metricsync.StrategyManual {
		return nil, metricsync.ErrManualMetric
	}

	result := r.processor.SyncMetric(ctx, metric)

	var anomalies []*models.MetricAnomaly
	if result.Success {
		anomalies, err = r.detector.ScanMetric(ctx, metric)
		if err != nil {
			r.logger.WithFields(map[string]interface{}{
				"metric_id": metricID.String(),
				"error":     err.Error(),
			}).Warn("Post-sync anomaly scan failed")
		}
	}
	return &ManualSyncResult{Sync: result, Anomalies: anomalies}, nil
}

// RunAnomalyDetection scans all active metrics without syncing first.
func (r *Runner) RunAnomalyDetection(ctx context.Context) (*anomaly.ScanReport, error) {
	return r.detector.ScanAll(ctx)
}

// RecomputeRollups recomputes the given rollup metrics, or every active
// rollup when no ids are passed.
func (r *Runner) RecomputeRollups(ctx context.Context, ids []uuid.UUID) ([]*metricsync.RollupResult, error) {
	if len(ids) == 0 {
		return r.processor.RecomputeAllRollups(ctx)
	}

	var results []*metricsync.RollupResult
	for _, id := range ids {
		result, err := r.processor.RecomputeRollupByID(ctx, id)
		if err != nil {
			return results, fmt.Errorf("rollup %s: %w", id, err)
		}
		results = append(results, result)
	}
	return results, nil
}
