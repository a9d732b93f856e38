package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// Memory is an in-memory Store used by tests and local development. It keeps
// the same ordering semantics as the GORM implementation: value series are
// ordered by recorded_at descending with insertion order as tie-break.
type Memory struct {
	mu sync.RWMutex

	Metrics     map[uuid.UUID]*models.Metric
	DataSources map[uuid.UUID]*models.DataSource
	Values      []*models.MetricValue
	Thresholds  map[uuid.UUID]*models.MetricThreshold
	SyncLogs    map[uuid.UUID]*models.SyncLog
	Anomalies   map[uuid.UUID]*models.MetricAnomaly
	Alerts      map[uuid.UUID]*models.Alert

	syncLogOrder []uuid.UUID
	anomalyOrder []uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		Metrics:     make(map[uuid.UUID]*models.Metric),
		DataSources: make(map[uuid.UUID]*models.DataSource),
		Thresholds:  make(map[uuid.UUID]*models.MetricThreshold),
		SyncLogs:    make(map[uuid.UUID]*models.SyncLog),
		Anomalies:   make(map[uuid.UUID]*models.MetricAnomaly),
		Alerts:      make(map[uuid.UUID]*models.Alert),
	}
}

// AddMetric registers a metric, assigning an id when absent.
func (m *Memory) AddMetric(metric *models.Metric) *models.Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	m.Metrics[metric.ID] = metric
	return metric
}

// AddDataSource registers a data source, assigning an id when absent.
func (m *Memory) AddDataSource(ds *models.DataSource) *models.DataSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	m.DataSources[ds.ID] = ds
	return ds
}

// AddThreshold registers a threshold rule, assigning an id when absent.
func (m *Memory) AddThreshold(t *models.MetricThreshold) *models.MetricThreshold {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.Thresholds[t.ID] = t
	return t
}

func (m *Memory) listMetrics(match func(*models.Metric) bool) []*models.Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Metric
	for _, metric := range m.Metrics {
		if match(metric) {
			out = append(out, metric)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) ListSyncEnabledMetrics(ctx context.Context) ([]*models.Metric, error) {
	return m.listMetrics(func(metric *models.Metric) bool {
		return metric.IsActive() && metric.SyncEnabled
	}), nil
}

func (m *Memory) ListActiveMetrics(ctx context.Context) ([]*models.Metric, error) {
	return m.listMetrics(func(metric *models.Metric) bool {
		return metric.IsActive()
	}), nil
}

func (m *Memory) ListRollupMetrics(ctx context.Context) ([]*models.Metric, error) {
	return m.listMetrics(func(metric *models.Metric) bool {
		return metric.IsActive() && metric.IsRollup
	}), nil
}

func (m *Memory) ListChildMetrics(ctx context.Context, parentID uuid.UUID) ([]*models.Metric, error) {
	return m.listMetrics(func(metric *models.Metric) bool {
		return metric.ParentMetricID != nil && *metric.ParentMetricID == parentID && metric.DeletedAt == nil
	}), nil
}

func (m *Memory) GetMetric(ctx context.Context, id uuid.UUID) (*models.Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metric, ok := m.Metrics[id]
	if !ok {
		return nil, ErrNotFound
	}
	return metric, nil
}

func (m *Memory) UpdateMetricSyncState(ctx context.Context, id uuid.UUID, lastSyncAt time.Time, syncErr *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, ok := m.Metrics[id]
	if !ok {
		return ErrNotFound
	}
	metric.LastSyncAt = &lastSyncAt
	metric.SyncError = syncErr
	metric.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) MarkMetricRollup(ctx context.Context, id uuid.UUID, aggregation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, ok := m.Metrics[id]
	if !ok {
		return ErrNotFound
	}
	metric.IsRollup = true
	metric.AggregationType = aggregation
	return nil
}

func (m *Memory) GetDataSource(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.DataSources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ds, nil
}

func (m *Memory) CreateMetricValue(ctx context.Context, value *models.MetricValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value.ID == uuid.Nil {
		value.ID = uuid.New()
	}
	if value.CreatedAt.IsZero() {
		value.CreatedAt = time.Now()
	}
	m.Values = append(m.Values, value)
	return nil
}

func (m *Memory) seriesValues(metricID uuid.UUID, window *string, anyWindow bool) []*models.MetricValue {
	var out []*models.MetricValue
	for _, v := range m.Values {
		if v.MetricID != metricID {
			continue
		}
		if !anyWindow {
			if window == nil && v.TimeWindow != nil {
				continue
			}
			if window != nil && (v.TimeWindow == nil || *v.TimeWindow != *window) {
				continue
			}
		}
		out = append(out, v)
	}
	// Most recent first; later insertions win ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return out
}

func (m *Memory) LatestValue(ctx context.Context, metricID uuid.UUID, window *string) (*models.MetricValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := m.seriesValues(metricID, window, false)
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

func (m *Memory) LatestValueAnyWindow(ctx context.Context, metricID uuid.UUID) (*models.MetricValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := m.seriesValues(metricID, nil, true)
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

func (m *Memory) RecentValues(ctx context.Context, metricID uuid.UUID, window *string, limit int) ([]*models.MetricValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := m.seriesValues(metricID, window, false)
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

func (m *Memory) ListActiveThresholds(ctx context.Context, metricID uuid.UUID) ([]*models.MetricThreshold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.MetricThreshold
	for _, t := range m.Thresholds {
		if t.MetricID == metricID && t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *Memory) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	m.SyncLogs[log.ID] = log
	m.syncLogOrder = append(m.syncLogOrder, log.ID)
	return nil
}

func (m *Memory) FinalizeSyncLog(ctx context.Context, id uuid.UUID, status string, records int, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.SyncLogs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	log.Status = status
	log.CompletedAt = &now
	log.RecordsProcessed = records
	log.ErrorMessage = errMsg
	return nil
}

func (m *Memory) ListSyncLogs(ctx context.Context, metricID uuid.UUID, limit int) ([]*models.SyncLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.SyncLog
	for i := len(m.syncLogOrder) - 1; i >= 0; i-- {
		log := m.SyncLogs[m.syncLogOrder[i]]
		if log.MetricID == metricID {
			out = append(out, log)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) CreateAnomaly(ctx context.Context, anomaly *models.MetricAnomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if anomaly.ID == uuid.Nil {
		anomaly.ID = uuid.New()
	}
	m.Anomalies[anomaly.ID] = anomaly
	m.anomalyOrder = append(m.anomalyOrder, anomaly.ID)
	return nil
}

func (m *Memory) AttachAlert(ctx context.Context, anomalyID, alertID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	anomaly, ok := m.Anomalies[anomalyID]
	if !ok {
		return ErrNotFound
	}
	anomaly.AlertID = &alertID
	return nil
}

func (m *Memory) ListAnomalies(ctx context.Context, filter *AnomalyFilter) ([]*models.MetricAnomaly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.MetricAnomaly
	for i := len(m.anomalyOrder) - 1; i >= 0; i-- {
		a := m.Anomalies[m.anomalyOrder[i]]
		if filter != nil {
			if filter.TenantID != nil && a.TenantID != *filter.TenantID {
				continue
			}
			if filter.MetricID != nil && a.MetricID != *filter.MetricID {
				continue
			}
			if len(filter.Kinds) > 0 && !contains(filter.Kinds, a.Kind) {
				continue
			}
			if len(filter.Severities) > 0 && !contains(filter.Severities, a.Severity) {
				continue
			}
			if filter.Since != nil && a.DetectedAt.Before(*filter.Since) {
				continue
			}
		}
		out = append(out, a)
		if filter != nil && filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CreateAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	m.Alerts[alert.ID] = alert
	return nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
