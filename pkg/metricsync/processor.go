package metricsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/formula"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

// ErrManualMetric is reported when a sync is requested for a metric that is
// fed only by user entry.
var ErrManualMetric = fmt.Errorf("manual metrics cannot be synced")

// Result is the outcome of syncing one metric.
type Result struct {
	MetricID         uuid.UUID          `json:"metric_id"`
	MetricName       string             `json:"metric_name"`
	Strategy         string             `json:"strategy"`
	Success          bool               `json:"success"`
	Value            float64            `json:"value,omitempty"`
	WindowValues     map[string]float64 `json:"window_values,omitempty"`
	RecordsProcessed int                `json:"records_processed"`
	Error            string             `json:"error,omitempty"`
	SyncLogID        uuid.UUID          `json:"sync_log_id,omitempty"`
}

// Processor syncs metrics from their configured sources. One Processor is
// shared by the scheduler, the API and the job entry points; per-metric locks
// keep concurrent triggers from double-writing a series.
type Processor struct {
	store     store.Store
	registry  adapters.Registry
	evaluator *formula.Evaluator
	logger    *logger.Logger
	tracer    trace.Tracer
	locks     *metricLocks
	now       func() time.Time
}

// NewProcessor creates a sync processor.
func NewProcessor(st store.Store, registry adapters.Registry, evaluator *formula.Evaluator, log *logger.Logger) *Processor {
	return &Processor{
		store:     st,
		registry:  registry,
		evaluator: evaluator,
		logger:    log,
		tracer:    otel.Tracer("metricsync"),
		locks:     newMetricLocks(),
		now:       time.Now,
	}
}

// SyncMetricByID loads a metric and syncs it.
func (p *Processor) SyncMetricByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	metric, err := p.store.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.SyncMetric(ctx, metric), nil
}

// SyncMetric resolves the metric's strategy and executes it. A sync log row is
// created in the running state before any external call and finalized on every
// exit path; the metric's last_sync_at/sync_error fields are updated to match.
func (p *Processor) SyncMetric(ctx context.Context, metric *models.Metric) *Result {
	ctx, span := p.tracer.Start(ctx, "metricsync.sync_metric")
	defer span.End()

	strategy := ResolveStrategy(metric)
	span.SetAttributes(
		attribute.String("metric.id", metric.ID.String()),
		attribute.String("metric.strategy", strategy.String()),
	)

	result := &Result{
		MetricID:   metric.ID,
		MetricName: metric.Name,
		Strategy:   strategy.String(),
	}
	if strategy == StrategyManual {
		result.Error = ErrManualMetric.Error()
		return result
	}

	release := p.locks.acquire(metric.ID)
	defer release()

	log := p.logger.WithFields(map[string]interface{}{
		"tenant_id": metric.TenantID.String(),
		"metric_id": metric.ID.String(),
		"strategy":  strategy.String(),
	})

	syncLog := &models.SyncLog{
		TenantID:  metric.TenantID,
		MetricID:  metric.ID,
		Status:    models.SyncStatusRunning,
		StartedAt: p.now(),
		Details:   models.JSONMap{"strategy": strategy.String()},
	}
	if err := p.store.CreateSyncLog(ctx, syncLog); err != nil {
		result.Error = fmt.Sprintf("failed to create sync log: %v", err)
		log.WithField("error", err.Error()).Error("Failed to create sync log")
		return result
	}
	result.SyncLogID = syncLog.ID

	switch strategy {
	case StrategyLegacyExternal:
		p.syncLegacyExternal(ctx, metric, result)
	case StrategySingleWindow:
		p.syncSingleWindow(ctx, metric, result)
	case StrategyMultiWindow:
		p.syncMultiWindow(ctx, metric, result)
	case StrategyCalculated:
		p.syncCalculated(ctx, metric, result)
	case StrategyRollup:
		p.syncRollup(ctx, metric, result)
	}

	p.finalize(ctx, metric, syncLog.ID, result, log)
	return result
}

// finalize closes the sync log and mirrors the outcome onto the metric row.
func (p *Processor) finalize(ctx context.Context, metric *models.Metric, syncLogID uuid.UUID, result *Result, log *logger.Logger) {
	status := models.SyncStatusSuccess
	var errMsg *string
	if !result.Success {
		status = models.SyncStatusError
		msg := result.Error
		errMsg = &msg
	}

	if err := p.store.FinalizeSyncLog(ctx, syncLogID, status, result.RecordsProcessed, errMsg); err != nil {
		log.WithField("error", err.Error()).Error("Failed to finalize sync log")
	}
	if err := p.store.UpdateMetricSyncState(ctx, metric.ID, p.now(), errMsg); err != nil {
		log.WithField("error", err.Error()).Error("Failed to update metric sync state")
	}

	if result.Success {
		log.WithFields(map[string]interface{}{
			"records_processed": result.RecordsProcessed,
		}).Info("Metric sync completed")
	} else {
		log.WithField("error", result.Error).Warn("Metric sync failed")
	}
}

// fetchFromDataSource loads the metric's data source and fetches one value
// over the given range.
func (p *Processor) fetchFromDataSource(ctx context.Context, metric *models.Metric, timeRange *timewindow.Range) (adapters.SyncResult, string) {
	if metric.DataSourceID == nil {
		return adapters.Failure("metric has no data source configured"), ""
	}
	ds, err := p.store.GetDataSource(ctx, *metric.DataSourceID)
	if err != nil {
		return adapters.Failure(fmt.Sprintf("failed to load data source: %v", err)), ""
	}
	if !ds.IsActive() {
		return adapters.Failure(fmt.Sprintf("data source %s is not active", ds.ID)), ""
	}

	adapter := p.registry.For(adapters.Provider(ds.Provider))
	if adapter == nil {
		return adapters.Failure(fmt.Sprintf("no adapter registered for provider %q", ds.Provider)), ""
	}
	if !adapter.Configured() {
		return adapters.Failure(fmt.Sprintf("adapter for provider %q is not configured", ds.Provider)), ""
	}
	return adapter.FetchMetric(ctx, adapters.ConfigFromDataSource(ds), timeRange), ds.Provider
}

// syncLegacyExternal fetches a point-in-time value through the metric's
// legacy source_type provider and appends it to the untagged series.
func (p *Processor) syncLegacyExternal(ctx context.Context, metric *models.Metric, result *Result) {
	fetched, provider := p.fetchFromDataSource(ctx, metric, nil)
	if !fetched.Success {
		result.Error = fetched.Error
		return
	}

	if err := p.recordValue(ctx, metric, fetched.Value, nil, provider); err != nil {
		result.Error = err.Error()
		return
	}
	result.Success = true
	result.Value = fetched.Value
	result.RecordsProcessed = fetched.RecordsProcessed
}

// syncSingleWindow fetches the metric's one configured window and appends a
// window-tagged value.
func (p *Processor) syncSingleWindow(ctx context.Context, metric *models.Metric, result *Result) {
	window := ""
	if metric.TimeWindow != nil {
		window = *metric.TimeWindow
	}
	timeRange, err := timewindow.Compute(timewindow.Window(window), p.now())
	if err != nil {
		result.Error = err.Error()
		return
	}

	fetched, provider := p.fetchFromDataSource(ctx, metric, &timeRange)
	if !fetched.Success {
		result.Error = fetched.Error
		return
	}

	if err := p.recordValue(ctx, metric, fetched.Value, &window, provider); err != nil {
		result.Error = err.Error()
		return
	}
	result.Success = true
	result.Value = fetched.Value
	result.WindowValues = map[string]float64{window: fetched.Value}
	result.RecordsProcessed = fetched.RecordsProcessed
}

// syncMultiWindow fetches each configured window independently. Successful
// windows are appended even when others fail; the sync succeeds only when
// every window does, and all window errors are concatenated into one message.
func (p *Processor) syncMultiWindow(ctx context.Context, metric *models.Metric, result *Result) {
	result.WindowValues = make(map[string]float64, len(metric.TimeWindows))
	var windowErrors []string

	for _, window := range metric.TimeWindows {
		timeRange, err := timewindow.Compute(timewindow.Window(window), p.now())
		if err != nil {
			windowErrors = append(windowErrors, fmt.Sprintf("%s: %v", window, err))
			continue
		}

		fetched, provider := p.fetchFromDataSource(ctx, metric, &timeRange)
		if !fetched.Success {
			windowErrors = append(windowErrors, fmt.Sprintf("%s: %s", window, fetched.Error))
			continue
		}

		w := window
		if err := p.recordValue(ctx, metric, fetched.Value, &w, provider); err != nil {
			windowErrors = append(windowErrors, fmt.Sprintf("%s: %v", window, err))
			continue
		}
		result.WindowValues[window] = fetched.Value
		result.RecordsProcessed += fetched.RecordsProcessed
	}

	if len(windowErrors) > 0 {
		result.Error = strings.Join(windowErrors, "; ")
		return
	}
	result.Success = true
}

// syncCalculated evaluates the metric's formula and appends the result to the
// untagged series.
func (p *Processor) syncCalculated(ctx context.Context, metric *models.Metric, result *Result) {
	evaluated := p.evaluator.CalculateMetricValue(ctx, metric)
	if !evaluated.Success {
		result.Error = evaluated.Error
		return
	}

	if err := p.recordValue(ctx, metric, evaluated.Value, nil, models.ValueSourceCalculated); err != nil {
		result.Error = err.Error()
		return
	}
	result.Success = true
	result.Value = evaluated.Value
	result.RecordsProcessed = evaluated.RecordsProcessed
}

// syncRollup recomputes the rollup from its children.
func (p *Processor) syncRollup(ctx context.Context, metric *models.Metric, result *Result) {
	rollup, err := p.RecomputeRollup(ctx, metric)
	if err != nil {
		result.Error = err.Error()
		return
	}
	result.Success = true
	result.Value = rollup.Value
	result.RecordsProcessed = rollup.ChildCount
}

// recordValue appends one point to a metric series.
func (p *Processor) recordValue(ctx context.Context, metric *models.Metric, value float64, window *string, source string) error {
	if source == "" {
		source = metric.SourceType
	}
	point := &models.MetricValue{
		TenantID:   metric.TenantID,
		MetricID:   metric.ID,
		Value:      value,
		TimeWindow: window,
		RecordedAt: p.now(),
		Source:     source,
	}
	if err := p.store.CreateMetricValue(ctx, point); err != nil {
		return fmt.Errorf("failed to record metric value: %w", err)
	}
	return nil
}
