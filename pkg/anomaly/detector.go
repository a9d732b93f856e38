// Package anomaly scans metric value series for statistical anomalies:
// stale series, threshold rule breaches, z-score outliers and trend
// reversals. Detected anomalies are persisted and, when severe enough,
// raised as alerts.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
)

// Config tunes the detection checks.
type Config struct {
	// MissingDataAfter is how stale a synced metric's newest value may be
	// before a missing-data anomaly is raised.
	MissingDataAfter time.Duration `yaml:"missing_data_after" env:"ANOMALY_MISSING_DATA_AFTER" default:"24h"`
	// MinPriorValues is the minimum history (excluding the current value)
	// required before the deviation check runs.
	MinPriorValues int `yaml:"min_prior_values" env:"ANOMALY_MIN_PRIOR_VALUES" default:"5"`
	// MaxPriorValues caps how much history the deviation check considers.
	MaxPriorValues int `yaml:"max_prior_values" env:"ANOMALY_MAX_PRIOR_VALUES" default:"7"`
	// ZScoreWarning / ZScoreCritical are the absolute z-score cutoffs.
	ZScoreWarning  float64 `yaml:"z_score_warning" env:"ANOMALY_Z_SCORE_WARNING" default:"2"`
	ZScoreCritical float64 `yaml:"z_score_critical" env:"ANOMALY_Z_SCORE_CRITICAL" default:"3"`
	// TrendMinSlope is the minimum normalized slope magnitude both segments
	// must show before a reversal is reported.
	TrendMinSlope float64 `yaml:"trend_min_slope" env:"ANOMALY_TREND_MIN_SLOPE" default:"0.1"`
	// TrendSegment is the number of points in each of the two compared
	// trend segments.
	TrendSegment int `yaml:"trend_segment" env:"ANOMALY_TREND_SEGMENT" default:"4"`
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		MissingDataAfter: 24 * time.Hour,
		MinPriorValues:   5,
		MaxPriorValues:   7,
		ZScoreWarning:    2,
		ZScoreCritical:   3,
		TrendMinSlope:    0.1,
		TrendSegment:     4,
	}
}

// ScanReport summarizes one detection run.
type ScanReport struct {
	MetricsScanned int                     `json:"metrics_scanned"`
	AnomaliesFound int                     `json:"anomalies_found"`
	AlertsRaised   int                     `json:"alerts_raised"`
	Anomalies      []*models.MetricAnomaly `json:"anomalies,omitempty"`
}

// Detector runs the anomaly checks over metric series.
type Detector struct {
	store  store.Store
	config Config
	logger *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewDetector creates an anomaly detector.
func NewDetector(st store.Store, config Config, log *logger.Logger) *Detector {
	if config.TrendSegment < 2 {
		config.TrendSegment = DefaultConfig().TrendSegment
	}
	return &Detector{
		store:  st,
		config: config,
		logger: log,
		tracer: otel.Tracer("anomaly"),
		now:    time.Now,
	}
}

// ScanAll scans every active metric. A failing metric is logged and skipped;
// the run only errors when the metric collection itself cannot be read.
func (d *Detector) ScanAll(ctx context.Context) (*ScanReport, error) {
	ctx, span := d.tracer.Start(ctx, "anomaly.scan_all")
	defer span.End()

	metrics, err := d.store.ListActiveMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active metrics: %w", err)
	}

	report := &ScanReport{}
	for _, metric := range metrics {
		found, err := d.ScanMetric(ctx, metric)
		if err != nil {
			d.logger.WithFields(map[string]interface{}{
				"metric_id": metric.ID.String(),
				"error":     err.Error(),
			}).Warn("Anomaly scan failed for metric")
			continue
		}
		report.MetricsScanned++
		report.AnomaliesFound += len(found)
		for _, a := range found {
			if a.AlertID != nil {
				report.AlertsRaised++
			}
		}
		report.Anomalies = append(report.Anomalies, found...)
	}

	span.SetAttributes(
		attribute.Int("anomaly.metrics_scanned", report.MetricsScanned),
		attribute.Int("anomaly.found", report.AnomaliesFound),
	)
	d.logger.WithFields(map[string]interface{}{
		"metrics_scanned": report.MetricsScanned,
		"anomalies_found": report.AnomaliesFound,
		"alerts_raised":   report.AlertsRaised,
	}).Info("Anomaly scan completed")
	return report, nil
}

// ScanMetricByID loads a metric and scans it.
func (d *Detector) ScanMetricByID(ctx context.Context, id uuid.UUID) ([]*models.MetricAnomaly, error) {
	metric, err := d.store.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.ScanMetric(ctx, metric)
}

// ScanMetric runs every check against each of the metric's series. Detected
// anomalies are persisted; non-informational ones additionally raise alerts.
func (d *Detector) ScanMetric(ctx context.Context, metric *models.Metric) ([]*models.MetricAnomaly, error) {
	ctx, span := d.tracer.Start(ctx, "anomaly.scan_metric")
	defer span.End()
	span.SetAttributes(attribute.String("metric.id", metric.ID.String()))

	var found []*models.MetricAnomaly

	if a, err := d.checkMissingData(ctx, metric); err != nil {
		return nil, err
	} else if a != nil {
		found = append(found, a)
	}

	thresholds, err := d.store.ListActiveThresholds(ctx, metric.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}

	for _, window := range seriesWindows(metric) {
		series, err := d.seriesHistory(ctx, metric, window, thresholds)
		if err != nil {
			return nil, err
		}
		if len(series) == 0 {
			continue
		}

		found = append(found, d.checkThresholds(metric, window, series, thresholds)...)
		if a := d.checkDeviation(metric, window, series); a != nil {
			found = append(found, a)
		}
		if a := d.checkTrend(metric, window, series); a != nil {
			found = append(found, a)
		}
	}

	for _, a := range found {
		if err := d.record(ctx, metric, a); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// seriesWindows returns the series a metric maintains: one tagged series per
// configured window, or the single untagged series for everything else.
func seriesWindows(metric *models.Metric) []*string {
	switch metric.MetricType {
	case models.MetricTypeSingleWindow:
		if metric.TimeWindow != nil && *metric.TimeWindow != "" {
			return []*string{metric.TimeWindow}
		}
	case models.MetricTypeMultiWindow:
		windows := make([]*string, 0, len(metric.TimeWindows))
		for i := range metric.TimeWindows {
			windows = append(windows, &metric.TimeWindows[i])
		}
		return windows
	}
	return []*string{nil}
}

// seriesHistory loads enough of a series for every check: the deviation
// window, both trend segments, and the longest consecutive-period rule.
func (d *Detector) seriesHistory(ctx context.Context, metric *models.Metric, window *string, thresholds []*models.MetricThreshold) ([]*models.MetricValue, error) {
	limit := d.config.MaxPriorValues + 1
	if trendNeed := 2 * d.config.TrendSegment; trendNeed > limit {
		limit = trendNeed
	}
	for _, rule := range thresholds {
		if need := rule.RequiredPeriods() + 1; need > limit {
			limit = need
		}
	}

	values, err := d.store.RecentValues(ctx, metric.ID, window, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load series history: %w", err)
	}
	return values, nil
}

// checkMissingData raises a warning when an externally-synced metric has not
// recorded a value recently. Metrics with no history at all are skipped: a
// sync that never ran surfaces through sync_error, not here.
func (d *Detector) checkMissingData(ctx context.Context, metric *models.Metric) (*models.MetricAnomaly, error) {
	if metric.IsManual() || !metric.SyncEnabled {
		return nil, nil
	}
	latest, err := d.store.LatestValueAnyWindow(ctx, metric.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest value: %w", err)
	}
	if latest == nil {
		return nil, nil
	}

	age := d.now().Sub(latest.RecordedAt)
	if age <= d.config.MissingDataAfter {
		return nil, nil
	}

	return &models.MetricAnomaly{
		Kind:     models.AnomalyKindMissing,
		Severity: models.SeverityWarning,
		Value:    latest.Value,
		Message: fmt.Sprintf("no new value recorded for %.0f hours (last at %s)",
			age.Hours(), latest.RecordedAt.Format(time.RFC3339)),
	}, nil
}

// checkThresholds evaluates each active rule against the series. A rule fires
// only when its breach condition holds for its full consecutive-period run,
// most recent value inclusive.
func (d *Detector) checkThresholds(metric *models.Metric, window *string, series []*models.MetricValue, thresholds []*models.MetricThreshold) []*models.MetricAnomaly {
	var found []*models.MetricAnomaly
	current := series[0].Value

	for _, rule := range thresholds {
		required := rule.RequiredPeriods()

		switch rule.Type {
		case models.ThresholdAbove, models.ThresholdBelow:
			if len(series) < required {
				continue
			}
			breached := true
			for i := 0; i < required; i++ {
				if !breaches(rule, series[i].Value) {
					breached = false
					break
				}
			}
			if !breached {
				continue
			}
			direction := "above"
			if rule.Type == models.ThresholdBelow {
				direction = "below"
			}
			found = append(found, &models.MetricAnomaly{
				Kind:          models.AnomalyKindThreshold,
				Severity:      rule.Severity,
				Value:         current,
				ExpectedValue: rule.Threshold,
				TimeWindow:    window,
				Message: fmt.Sprintf("value %.2f %s threshold %.2f for %d consecutive period(s)",
					current, direction, rule.Threshold, required),
			})

		case models.ThresholdChangePercent:
			// Each compared period needs a predecessor.
			if len(series) < required+1 {
				continue
			}
			breached := true
			var latestChange float64
			for i := 0; i < required; i++ {
				previous := series[i+1].Value
				if previous == 0 {
					breached = false
					break
				}
				change := (series[i].Value - previous) / previous * 100
				if i == 0 {
					latestChange = change
				}
				if math.Abs(change) <= rule.Threshold {
					breached = false
					break
				}
			}
			if !breached {
				continue
			}
			change := latestChange
			found = append(found, &models.MetricAnomaly{
				Kind:             models.AnomalyKindThreshold,
				Severity:         rule.Severity,
				Value:            current,
				ExpectedValue:    series[1].Value,
				DeviationPercent: &change,
				TimeWindow:       window,
				Message: fmt.Sprintf("value changed %.1f%% period-over-period, beyond %.1f%% for %d consecutive period(s)",
					change, rule.Threshold, required),
			})
		}
	}
	return found
}

func breaches(rule *models.MetricThreshold, value float64) bool {
	if rule.Type == models.ThresholdAbove {
		return value > rule.Threshold
	}
	return value < rule.Threshold
}

// checkDeviation compares the current value against the mean of its priors.
// A flat history (zero standard deviation) is skipped: any movement off a
// constant series would otherwise be infinitely anomalous.
func (d *Detector) checkDeviation(metric *models.Metric, window *string, series []*models.MetricValue) *models.MetricAnomaly {
	maxPoints := d.config.MaxPriorValues + 1
	if len(series) > maxPoints {
		series = series[:maxPoints]
	}
	if len(series) < d.config.MinPriorValues+1 {
		return nil
	}

	current := series[0].Value
	priors := make([]float64, 0, len(series)-1)
	for _, v := range series[1:] {
		priors = append(priors, v.Value)
	}

	m := mean(priors)
	sd := stdDev(priors)
	if sd == 0 {
		return nil
	}

	z := zScore(current, m, sd)
	var severity string
	switch {
	case math.Abs(z) > d.config.ZScoreCritical:
		severity = models.SeverityCritical
	case math.Abs(z) > d.config.ZScoreWarning:
		severity = models.SeverityWarning
	default:
		return nil
	}

	anomaly := &models.MetricAnomaly{
		Kind:          models.AnomalyKindDeviation,
		Severity:      severity,
		Value:         current,
		ExpectedValue: m,
		TimeWindow:    window,
		Message: fmt.Sprintf("value %.2f is %.1f standard deviations from the recent mean %.2f",
			current, z, m),
	}
	if m != 0 {
		percent := (current - m) / m * 100
		anomaly.DeviationPercent = &percent
	}
	return anomaly
}

// checkTrend compares the normalized slope of the most recent segment
// against the segment before it and reports a reversal when both trends are
// material and point in opposite directions. Reversals are informational;
// they flag direction changes, not bad values.
func (d *Detector) checkTrend(metric *models.Metric, window *string, series []*models.MetricValue) *models.MetricAnomaly {
	segment := d.config.TrendSegment
	if len(series) < 2*segment {
		return nil
	}

	// series is most-recent-first; trend math wants chronological order.
	chrono := make([]float64, 2*segment)
	for i := 0; i < 2*segment; i++ {
		chrono[2*segment-1-i] = series[i].Value
	}

	priorSlope := normalizedSlope(chrono[:segment])
	recentSlope := normalizedSlope(chrono[segment:])

	if math.Abs(priorSlope) <= d.config.TrendMinSlope || math.Abs(recentSlope) <= d.config.TrendMinSlope {
		return nil
	}
	if priorSlope*recentSlope >= 0 {
		return nil
	}

	direction := "rising to falling"
	if recentSlope > 0 {
		direction = "falling to rising"
	}
	return &models.MetricAnomaly{
		Kind:       models.AnomalyKindTrend,
		Severity:   models.SeverityInfo,
		Value:      series[0].Value,
		TimeWindow: window,
		Message: fmt.Sprintf("trend reversed from %s (normalized slope %.2f to %.2f)",
			direction, priorSlope, recentSlope),
	}
}

// record persists an anomaly and raises its alert when warranted.
func (d *Detector) record(ctx context.Context, metric *models.Metric, anomaly *models.MetricAnomaly) error {
	anomaly.TenantID = metric.TenantID
	anomaly.MetricID = metric.ID
	anomaly.DetectedAt = d.now()

	if err := d.store.CreateAnomaly(ctx, anomaly); err != nil {
		return fmt.Errorf("failed to create anomaly: %w", err)
	}

	d.logger.WithFields(map[string]interface{}{
		"tenant_id": metric.TenantID.String(),
		"metric_id": metric.ID.String(),
		"kind":      anomaly.Kind,
		"severity":  anomaly.Severity,
	}).Info("Anomaly detected")

	if anomaly.Severity == models.SeverityInfo {
		return nil
	}
	return d.raiseAlert(ctx, metric, anomaly)
}
