// Package store defines the narrow persistence contract the sync and anomaly
// engines consume, together with a GORM-backed implementation and an
// in-memory implementation used by tests and local development.
//
// The engine never touches gorm directly: everything it needs from the
// relational schema is expressed here as filter-by-field, order-by and limit
// operations over the metrics tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("record not found")

// AnomalyFilter contains filtering options for anomaly queries.
type AnomalyFilter struct {
	TenantID   *uuid.UUID
	MetricID   *uuid.UUID
	Kinds      []string
	Severities []string
	Since      *time.Time
	Limit      int
}

// Store is the persistence contract of the metrics engine.
type Store interface {
	// Metrics
	ListSyncEnabledMetrics(ctx context.Context) ([]*models.Metric, error)
	ListActiveMetrics(ctx context.Context) ([]*models.Metric, error)
	ListRollupMetrics(ctx context.Context) ([]*models.Metric, error)
	ListChildMetrics(ctx context.Context, parentID uuid.UUID) ([]*models.Metric, error)
	GetMetric(ctx context.Context, id uuid.UUID) (*models.Metric, error)
	// UpdateMetricSyncState records the outcome of a sync attempt on the
	// metric row: last_sync_at is set, and sync_error is set on failure or
	// cleared (nil) on success.
	UpdateMetricSyncState(ctx context.Context, id uuid.UUID, lastSyncAt time.Time, syncErr *string) error
	// MarkMetricRollup flags a metric as a rollup with the given aggregation.
	MarkMetricRollup(ctx context.Context, id uuid.UUID, aggregation string) error

	// Data sources
	GetDataSource(ctx context.Context, id uuid.UUID) (*models.DataSource, error)

	// Metric values (append-only)
	CreateMetricValue(ctx context.Context, value *models.MetricValue) error
	// LatestValue returns the most recent value for a (metric, window) pair,
	// or (nil, nil) when the series has no points. A nil window selects the
	// untagged legacy/manual series.
	LatestValue(ctx context.Context, metricID uuid.UUID, window *string) (*models.MetricValue, error)
	// LatestValueAnyWindow returns the most recent value across all of the
	// metric's series, or (nil, nil) when none exist.
	LatestValueAnyWindow(ctx context.Context, metricID uuid.UUID) (*models.MetricValue, error)
	// RecentValues returns up to limit values of a series, most recent first.
	RecentValues(ctx context.Context, metricID uuid.UUID, window *string, limit int) ([]*models.MetricValue, error)

	// Thresholds
	ListActiveThresholds(ctx context.Context, metricID uuid.UUID) ([]*models.MetricThreshold, error)

	// Sync logs
	CreateSyncLog(ctx context.Context, log *models.SyncLog) error
	FinalizeSyncLog(ctx context.Context, id uuid.UUID, status string, records int, errMsg *string) error
	ListSyncLogs(ctx context.Context, metricID uuid.UUID, limit int) ([]*models.SyncLog, error)

	// Anomalies and alerts
	CreateAnomaly(ctx context.Context, anomaly *models.MetricAnomaly) error
	AttachAlert(ctx context.Context, anomalyID, alertID uuid.UUID) error
	ListAnomalies(ctx context.Context, filter *AnomalyFilter) ([]*models.MetricAnomaly, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
}
