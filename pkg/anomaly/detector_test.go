package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
)

func newTestDetector(mem *store.Memory) *Detector {
	return NewDetector(mem, DefaultConfig(), logger.NewDefaultLogger("anomaly-test", "test"))
}

// seedSeries appends values chronologically, one hour apart, ending now.
func seedSeries(mem *store.Memory, metric *models.Metric, window *string, values []float64) {
	now := time.Now()
	for i, v := range values {
		mem.CreateMetricValue(context.Background(), &models.MetricValue{
			MetricID:   metric.ID,
			Value:      v,
			TimeWindow: window,
			RecordedAt: now.Add(-time.Duration(len(values)-1-i) * time.Hour),
			Source:     models.ValueSourceManual,
		})
	}
}

func findKind(anomalies []*models.MetricAnomaly, kind string) *models.MetricAnomaly {
	for _, a := range anomalies {
		if a.Kind == kind {
			return a
		}
	}
	return nil
}

func TestScanMetricDeviation(t *testing.T) {
	// Priors have mean 100 and population standard deviation exactly 10.
	priors := []float64{85, 95, 105, 115, 90, 100, 110}

	tests := []struct {
		name     string
		current  float64
		severity string
	}{
		{"within two sigma", 109, ""},
		{"beyond two sigma", 125, models.SeverityWarning},
		{"beyond three sigma", 135, models.SeverityCritical},
		{"beyond three sigma low", 65, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := store.NewMemory()
			metric := mem.AddMetric(&models.Metric{Name: "Revenue", Status: models.StatusActive})
			seedSeries(mem, metric, nil, append(append([]float64{}, priors...), tt.current))

			found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
			require.NoError(t, err)

			deviation := findKind(found, models.AnomalyKindDeviation)
			if tt.severity == "" {
				assert.Nil(t, deviation)
				return
			}
			require.NotNil(t, deviation)
			assert.Equal(t, tt.severity, deviation.Severity)
			assert.Equal(t, tt.current, deviation.Value)
			assert.Equal(t, 100.0, deviation.ExpectedValue)
			require.NotNil(t, deviation.DeviationPercent)
			assert.InDelta(t, (tt.current-100)/100*100, *deviation.DeviationPercent, 1e-9)
		})
	}
}

func TestScanMetricDeviationNeedsHistory(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Sparse", Status: models.StatusActive})
	// Four priors + current: below the five-prior minimum.
	seedSeries(mem, metric, nil, []float64{100, 100, 100, 90, 500})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)
	assert.Nil(t, findKind(found, models.AnomalyKindDeviation))
}

func TestScanMetricDeviationSkipsFlatHistory(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Flat", Status: models.StatusActive})
	seedSeries(mem, metric, nil, []float64{100, 100, 100, 100, 100, 100, 500})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)
	assert.Nil(t, findKind(found, models.AnomalyKindDeviation))
}

func TestScanMetricThresholdConsecutivePeriods(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Churn", Status: models.StatusActive})
	mem.AddThreshold(&models.MetricThreshold{
		MetricID:           metric.ID,
		Type:               models.ThresholdAbove,
		Threshold:          50,
		Severity:           models.SeverityCritical,
		ConsecutivePeriods: 2,
		Active:             true,
	})

	// Latest two values breach; the one before does not.
	seedSeries(mem, metric, nil, []float64{40, 55, 60})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	threshold := findKind(found, models.AnomalyKindThreshold)
	require.NotNil(t, threshold)
	assert.Equal(t, models.SeverityCritical, threshold.Severity)
	assert.Equal(t, 60.0, threshold.Value)
	assert.Equal(t, 50.0, threshold.ExpectedValue)
}

func TestScanMetricThresholdBrokenStreakDoesNotFire(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Churn", Status: models.StatusActive})
	mem.AddThreshold(&models.MetricThreshold{
		MetricID:           metric.ID,
		Type:               models.ThresholdAbove,
		Threshold:          50,
		Severity:           models.SeverityWarning,
		ConsecutivePeriods: 2,
		Active:             true,
	})

	// The breach streak is interrupted one period back.
	seedSeries(mem, metric, nil, []float64{55, 40, 60})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)
	assert.Nil(t, findKind(found, models.AnomalyKindThreshold))
}

func TestScanMetricThresholdBelow(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "NPS", Status: models.StatusActive})
	mem.AddThreshold(&models.MetricThreshold{
		MetricID:  metric.ID,
		Type:      models.ThresholdBelow,
		Threshold: 30,
		Severity:  models.SeverityWarning,
		Active:    true,
	})
	seedSeries(mem, metric, nil, []float64{45, 25})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)
	require.NotNil(t, findKind(found, models.AnomalyKindThreshold))
}

func TestScanMetricThresholdChangePercent(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Signups", Status: models.StatusActive})
	mem.AddThreshold(&models.MetricThreshold{
		MetricID:  metric.ID,
		Type:      models.ThresholdChangePercent,
		Threshold: 20,
		Severity:  models.SeverityWarning,
		Active:    true,
	})

	// 100 -> 150 is a 50% jump.
	seedSeries(mem, metric, nil, []float64{100, 150})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	threshold := findKind(found, models.AnomalyKindThreshold)
	require.NotNil(t, threshold)
	require.NotNil(t, threshold.DeviationPercent)
	assert.InDelta(t, 50.0, *threshold.DeviationPercent, 1e-9)
}

func TestScanMetricTrendReversal(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Pipeline", Status: models.StatusActive})
	// Four rising points then four falling points.
	seedSeries(mem, metric, nil, []float64{10, 12, 14, 16, 16, 14, 12, 10})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	trend := findKind(found, models.AnomalyKindTrend)
	require.NotNil(t, trend)
	assert.Equal(t, models.SeverityInfo, trend.Severity)
	assert.Nil(t, trend.AlertID, "informational anomalies must not raise alerts")
	assert.Contains(t, trend.Message, "rising to falling")
}

func TestScanMetricTrendContinuationIsQuiet(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Steady Growth", Status: models.StatusActive})
	seedSeries(mem, metric, nil, []float64{10, 12, 14, 16, 18, 20, 22, 24})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)
	assert.Nil(t, findKind(found, models.AnomalyKindTrend))
}

func TestScanMetricMissingData(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{
		Name:        "Synced",
		MetricType:  models.MetricTypeManual,
		SourceType:  models.SourceTypeHubSpot,
		SyncEnabled: true,
		Status:      models.StatusActive,
	})
	mem.CreateMetricValue(context.Background(), &models.MetricValue{
		MetricID:   metric.ID,
		Value:      100,
		RecordedAt: time.Now().Add(-30 * time.Hour),
		Source:     models.ValueSourceHubSpot,
	})

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	missing := findKind(found, models.AnomalyKindMissing)
	require.NotNil(t, missing)
	assert.Equal(t, models.SeverityWarning, missing.Severity)
}

func TestScanMetricMissingDataSkipsManualAndFresh(t *testing.T) {
	mem := store.NewMemory()

	manual := mem.AddMetric(&models.Metric{
		Name:       "Manual",
		MetricType: models.MetricTypeManual,
		SourceType: models.SourceTypeManual,
		Status:     models.StatusActive,
	})
	mem.CreateMetricValue(context.Background(), &models.MetricValue{
		MetricID: manual.ID, Value: 1, RecordedAt: time.Now().Add(-100 * time.Hour), Source: models.ValueSourceManual,
	})

	fresh := mem.AddMetric(&models.Metric{
		Name:        "Fresh",
		MetricType:  models.MetricTypeManual,
		SourceType:  models.SourceTypeHubSpot,
		SyncEnabled: true,
		Status:      models.StatusActive,
	})
	mem.CreateMetricValue(context.Background(), &models.MetricValue{
		MetricID: fresh.ID, Value: 1, RecordedAt: time.Now().Add(-2 * time.Hour), Source: models.ValueSourceHubSpot,
	})

	d := newTestDetector(mem)
	for _, metric := range []*models.Metric{manual, fresh} {
		found, err := d.ScanMetric(context.Background(), metric)
		require.NoError(t, err)
		assert.Nil(t, findKind(found, models.AnomalyKindMissing), metric.Name)
	}
}

func TestScanMetricMultiWindowScansEachSeries(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{
		Name:        "Pipeline",
		MetricType:  models.MetricTypeMultiWindow,
		TimeWindows: models.StringList{"mtd", "qtd"},
		Status:      models.StatusActive,
	})

	priors := []float64{85, 95, 105, 115, 90, 100, 110}
	mtd, qtd := "mtd", "qtd"
	seedSeries(mem, metric, &mtd, append(append([]float64{}, priors...), 135)) // critical outlier
	seedSeries(mem, metric, &qtd, append(append([]float64{}, priors...), 102)) // quiet

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	deviation := findKind(found, models.AnomalyKindDeviation)
	require.NotNil(t, deviation)
	require.NotNil(t, deviation.TimeWindow)
	assert.Equal(t, "mtd", *deviation.TimeWindow)
}

func TestCriticalAnomalyRaisesUrgentAlert(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Revenue", Status: models.StatusActive})
	priors := []float64{90, 88, 91, 89, 92, 87}
	seedSeries(mem, metric, nil, append(append([]float64{}, priors...), 45))

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	deviation := findKind(found, models.AnomalyKindDeviation)
	require.NotNil(t, deviation)
	assert.Equal(t, models.SeverityCritical, deviation.Severity)
	require.NotNil(t, deviation.AlertID)

	alert := mem.Alerts[*deviation.AlertID]
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertSeverityUrgent, alert.Severity)
	assert.Equal(t, "metric_anomaly", alert.Kind)
	require.NotNil(t, alert.AnomalyID)
	assert.Equal(t, deviation.ID, *alert.AnomalyID)

	// The persisted anomaly row carries the back-link too.
	stored := mem.Anomalies[deviation.ID]
	require.NotNil(t, stored)
	require.NotNil(t, stored.AlertID)
	assert.Equal(t, *deviation.AlertID, *stored.AlertID)
}

func TestWarningAnomalyRaisesNormalAlert(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{Name: "Revenue", Status: models.StatusActive})
	priors := []float64{85, 95, 105, 115, 90, 100, 110}
	seedSeries(mem, metric, nil, append(append([]float64{}, priors...), 125))

	found, err := newTestDetector(mem).ScanMetric(context.Background(), metric)
	require.NoError(t, err)

	deviation := findKind(found, models.AnomalyKindDeviation)
	require.NotNil(t, deviation)
	require.NotNil(t, deviation.AlertID)
	assert.Equal(t, models.AlertSeverityNormal, mem.Alerts[*deviation.AlertID].Severity)
}

func TestScanAllIsolatesMetrics(t *testing.T) {
	mem := store.NewMemory()
	priors := []float64{85, 95, 105, 115, 90, 100, 110}

	noisy := mem.AddMetric(&models.Metric{Name: "Noisy", Status: models.StatusActive})
	seedSeries(mem, noisy, nil, append(append([]float64{}, priors...), 135))

	quiet := mem.AddMetric(&models.Metric{Name: "Quiet", Status: models.StatusActive})
	seedSeries(mem, quiet, nil, append(append([]float64{}, priors...), 101))

	report, err := newTestDetector(mem).ScanAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.MetricsScanned)
	assert.Equal(t, 1, report.AnomaliesFound)
	assert.Equal(t, 1, report.AlertsRaised)
}
