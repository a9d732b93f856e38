package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/anomaly"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/formula"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/jobs"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/metricsync"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

type stubAdapter struct {
	value   float64
	records int
}

func (s *stubAdapter) Provider() adapters.Provider { return adapters.ProviderHubSpot }
func (s *stubAdapter) Configured() bool            { return true }
func (s *stubAdapter) FetchMetric(ctx context.Context, config adapters.FetchConfig, timeRange *timewindow.Range) adapters.SyncResult {
	return adapters.SyncResult{Success: true, Value: s.value, RecordsProcessed: s.records}
}

func newTestRouter(mem *store.Memory, registry adapters.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)

	log := logger.NewDefaultLogger("api-test", "test")
	processor := metricsync.NewProcessor(mem, registry, formula.NewEvaluator(mem, registry, log), log)
	detector := anomaly.NewDetector(mem, anomaly.DefaultConfig(), log)
	config := jobs.DefaultConfig()
	config.ThrottleDelay = 0
	runner := jobs.NewRunner(mem, processor, detector, config, log)

	router := gin.New()
	v1 := router.Group("/api/v1")
	NewSyncController(runner, mem).RegisterRoutes(v1)
	NewAnomalyController(runner, mem).RegisterRoutes(v1)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func singleWindowMetric(mem *store.Memory, name string) *models.Metric {
	ds := mem.AddDataSource(&models.DataSource{
		Name:     "Deals",
		Provider: models.ProviderHubSpot,
		Status:   models.StatusActive,
	})
	window := string(timewindow.WindowMTD)
	return mem.AddMetric(&models.Metric{
		Name:         name,
		MetricType:   models.MetricTypeSingleWindow,
		DataSourceID: &ds.ID,
		TimeWindow:   &window,
		SyncEnabled:  true,
		Status:       models.StatusActive,
	})
}

func TestSyncMetricEndpoint(t *testing.T) {
	mem := store.NewMemory()
	metric := singleWindowMetric(mem, "Deals Created MTD")
	registry := adapters.Registry{adapters.ProviderHubSpot: &stubAdapter{value: 12, records: 12}}
	router := newTestRouter(mem, registry)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/"+metric.ID.String()+"/sync", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var result jobs.ManualSyncResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	require.NotNil(t, result.Sync)
	assert.True(t, result.Sync.Success)
	assert.Equal(t, 12.0, result.Sync.Value)
	assert.Len(t, mem.SyncLogs, 1)
}

func TestSyncMetricEndpointNotFound(t *testing.T) {
	router := newTestRouter(store.NewMemory(), nil)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/"+uuid.NewString()+"/sync", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "METRIC_NOT_FOUND", response.Error)
}

func TestSyncMetricEndpointInvalidID(t *testing.T) {
	router := newTestRouter(store.NewMemory(), nil)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/not-a-uuid/sync", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSyncMetricEndpointRejectsManual(t *testing.T) {
	mem := store.NewMemory()
	metric := mem.AddMetric(&models.Metric{
		Name:       "Headcount",
		MetricType: models.MetricTypeManual,
		SourceType: models.SourceTypeManual,
		Status:     models.StatusActive,
	})
	router := newTestRouter(mem, nil)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/"+metric.ID.String()+"/sync", "")
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "MANUAL_METRIC", response.Error)
	assert.Empty(t, mem.SyncLogs)
}

func TestSyncAllMetricsEndpoint(t *testing.T) {
	mem := store.NewMemory()
	singleWindowMetric(mem, "Deals Created MTD")
	registry := adapters.Registry{adapters.ProviderHubSpot: &stubAdapter{value: 7, records: 7}}
	router := newTestRouter(mem, registry)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/sync", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var result jobs.SyncAndScanResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	require.NotNil(t, result.Batch)
	assert.Equal(t, 1, result.Batch.Total)
	assert.Equal(t, 1, result.Batch.Succeeded)
	require.NotNil(t, result.Scan)
	assert.Equal(t, 1, result.Scan.MetricsScanned)
}

func TestRecomputeRollupsEndpoint(t *testing.T) {
	mem := store.NewMemory()
	parent := mem.AddMetric(&models.Metric{
		Name:     "Team Revenue",
		IsRollup: true,
		Status:   models.StatusActive,
	})
	child := mem.AddMetric(&models.Metric{
		Name:           "Rep Revenue",
		ParentMetricID: &parent.ID,
		Status:         models.StatusActive,
	})
	mem.CreateMetricValue(context.Background(), &models.MetricValue{
		MetricID: child.ID, Value: 250, RecordedAt: time.Now(), Source: models.ValueSourceManual,
	})
	router := newTestRouter(mem, nil)

	// Empty body recomputes every rollup.
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/rollup/recompute", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var response struct {
		Results []*metricsync.RollupResult `json:"results"`
		Total   int                        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Equal(t, 1, response.Total)
	assert.Equal(t, 250.0, response.Results[0].Value)

	// Explicit id list.
	body := fmt.Sprintf(`{"metric_ids":[%q]}`, parent.ID)
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/metrics/rollup/recompute", body)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.False(t, response.Results[0].Changed)
}

func TestRecomputeRollupsEndpointUnknownMetric(t *testing.T) {
	router := newTestRouter(store.NewMemory(), nil)

	body := fmt.Sprintf(`{"metric_ids":[%q]}`, uuid.New())
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/metrics/rollup/recompute", body)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetSyncLogsEndpoint(t *testing.T) {
	mem := store.NewMemory()
	metric := singleWindowMetric(mem, "Deals Created MTD")
	registry := adapters.Registry{adapters.ProviderHubSpot: &stubAdapter{value: 5, records: 5}}
	router := newTestRouter(mem, registry)

	doRequest(t, router, http.MethodPost, "/api/v1/metrics/"+metric.ID.String()+"/sync", "")
	doRequest(t, router, http.MethodPost, "/api/v1/metrics/"+metric.ID.String()+"/sync", "")

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/metrics/"+metric.ID.String()+"/sync-logs?limit=1", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var response SyncLogsResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, metric.ID, response.MetricID)
	assert.Equal(t, 1, response.Total)
	require.Len(t, response.SyncLogs, 1)
	assert.Equal(t, models.SyncStatusSuccess, response.SyncLogs[0].Status)
}

func TestGetSyncLogsEndpointUnknownMetric(t *testing.T) {
	router := newTestRouter(store.NewMemory(), nil)

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/metrics/"+uuid.NewString()+"/sync-logs", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAnomalyScanEndpoint(t *testing.T) {
	mem := store.NewMemory()
	metric := singleWindowMetric(mem, "Deals Created MTD")
	window := *metric.TimeWindow

	// Stable history around 89.5 followed by a collapse to 45.
	now := time.Now()
	for i, v := range []float64{90, 88, 91, 89, 92, 87, 45} {
		mem.CreateMetricValue(context.Background(), &models.MetricValue{
			MetricID:   metric.ID,
			Value:      v,
			TimeWindow: &window,
			RecordedAt: now.Add(-time.Duration(7-i) * time.Hour),
			Source:     models.ValueSourceHubSpot,
		})
	}
	router := newTestRouter(mem, nil)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/anomalies/scan", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var report anomaly.ScanReport
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &report))
	assert.Equal(t, 1, report.MetricsScanned)
	assert.Equal(t, 1, report.AnomaliesFound)
}

func TestListAnomaliesEndpointFilters(t *testing.T) {
	mem := store.NewMemory()
	metricA := uuid.New()
	metricB := uuid.New()
	now := time.Now()

	seed := []*models.MetricAnomaly{
		{MetricID: metricA, Kind: models.AnomalyKindDeviation, Severity: models.SeverityCritical, DetectedAt: now.Add(-2 * time.Hour)},
		{MetricID: metricA, Kind: models.AnomalyKindThreshold, Severity: models.SeverityWarning, DetectedAt: now.Add(-30 * time.Minute)},
		{MetricID: metricB, Kind: models.AnomalyKindTrend, Severity: models.SeverityInfo, DetectedAt: now.Add(-10 * time.Minute)},
	}
	for _, a := range seed {
		require.NoError(t, mem.CreateAnomaly(context.Background(), a))
	}
	router := newTestRouter(mem, nil)

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/anomalies", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response AnomaliesResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, 3, response.Total)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/anomalies?metric_id="+metricA.String(), "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Total)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/anomalies?severity=critical,warning&kind=threshold", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Equal(t, 1, response.Total)
	assert.Equal(t, models.AnomalyKindThreshold, response.Anomalies[0].Kind)

	since := now.Add(-time.Hour).Format(time.RFC3339)
	recorder = doRequest(t, router, http.MethodGet, "/api/v1/anomalies?since="+since, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Total)
}

func TestListAnomaliesEndpointBadParams(t *testing.T) {
	router := newTestRouter(store.NewMemory(), nil)

	for _, path := range []string{
		"/api/v1/anomalies?metric_id=nope",
		"/api/v1/anomalies?tenant_id=nope",
		"/api/v1/anomalies?limit=0",
		"/api/v1/anomalies?since=yesterday",
	} {
		recorder := doRequest(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, recorder.Code, path)
	}
}
