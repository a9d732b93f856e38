package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database"
	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// GormStore implements Store on a GORM Postgres connection.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by the database connection.
func NewGormStore(conn *database.Connection) *GormStore {
	return &GormStore{db: conn.DB()}
}

func (s *GormStore) ListSyncEnabledMetrics(ctx context.Context) ([]*models.Metric, error) {
	var metrics []*models.Metric
	err := s.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL AND sync_enabled = ?", models.StatusActive, true).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync-enabled metrics: %w", err)
	}
	return metrics, nil
}

func (s *GormStore) ListActiveMetrics(ctx context.Context) ([]*models.Metric, error) {
	var metrics []*models.Metric
	err := s.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL", models.StatusActive).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active metrics: %w", err)
	}
	return metrics, nil
}

func (s *GormStore) ListRollupMetrics(ctx context.Context) ([]*models.Metric, error) {
	var metrics []*models.Metric
	err := s.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL AND is_rollup = ?", models.StatusActive, true).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rollup metrics: %w", err)
	}
	return metrics, nil
}

func (s *GormStore) ListChildMetrics(ctx context.Context, parentID uuid.UUID) ([]*models.Metric, error) {
	var metrics []*models.Metric
	err := s.db.WithContext(ctx).
		Where("parent_metric_id = ? AND deleted_at IS NULL", parentID).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list child metrics: %w", err)
	}
	return metrics, nil
}

func (s *GormStore) GetMetric(ctx context.Context, id uuid.UUID) (*models.Metric, error) {
	var metric models.Metric
	err := s.db.WithContext(ctx).First(&metric, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric %s: %w", id, err)
	}
	return &metric, nil
}

func (s *GormStore) UpdateMetricSyncState(ctx context.Context, id uuid.UUID, lastSyncAt time.Time, syncErr *string) error {
	updates := map[string]interface{}{
		"last_sync_at": lastSyncAt,
		"sync_error":   syncErr,
		"updated_at":   time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(&models.Metric{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update sync state for metric %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) MarkMetricRollup(ctx context.Context, id uuid.UUID, aggregation string) error {
	updates := map[string]interface{}{
		"is_rollup":        true,
		"aggregation_type": aggregation,
		"updated_at":       time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(&models.Metric{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark metric %s as rollup: %w", id, err)
	}
	return nil
}

func (s *GormStore) GetDataSource(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	var ds models.DataSource
	err := s.db.WithContext(ctx).First(&ds, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source %s: %w", id, err)
	}
	return &ds, nil
}

func (s *GormStore) CreateMetricValue(ctx context.Context, value *models.MetricValue) error {
	if err := s.db.WithContext(ctx).Create(value).Error; err != nil {
		return fmt.Errorf("failed to create metric value: %w", err)
	}
	return nil
}

func (s *GormStore) LatestValue(ctx context.Context, metricID uuid.UUID, window *string) (*models.MetricValue, error) {
	values, err := s.RecentValues(ctx, metricID, window, 1)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

func (s *GormStore) LatestValueAnyWindow(ctx context.Context, metricID uuid.UUID) (*models.MetricValue, error) {
	var value models.MetricValue
	err := s.db.WithContext(ctx).
		Where("metric_id = ?", metricID).
		Order("recorded_at DESC").
		First(&value).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest value for metric %s: %w", metricID, err)
	}
	return &value, nil
}

func (s *GormStore) RecentValues(ctx context.Context, metricID uuid.UUID, window *string, limit int) ([]*models.MetricValue, error) {
	query := s.db.WithContext(ctx).Where("metric_id = ?", metricID)
	if window == nil {
		query = query.Where("time_window IS NULL")
	} else {
		query = query.Where("time_window = ?", *window)
	}

	var values []*models.MetricValue
	if err := query.Order("recorded_at DESC").Limit(limit).Find(&values).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent values for metric %s: %w", metricID, err)
	}
	return values, nil
}

func (s *GormStore) ListActiveThresholds(ctx context.Context, metricID uuid.UUID) ([]*models.MetricThreshold, error) {
	var thresholds []*models.MetricThreshold
	err := s.db.WithContext(ctx).
		Where("metric_id = ? AND active = ?", metricID, true).
		Find(&thresholds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds for metric %s: %w", metricID, err)
	}
	return thresholds, nil
}

func (s *GormStore) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

func (s *GormStore) FinalizeSyncLog(ctx context.Context, id uuid.UUID, status string, records int, errMsg *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":            status,
		"completed_at":      now,
		"records_processed": records,
		"error_message":     errMsg,
	}
	if err := s.db.WithContext(ctx).Model(&models.SyncLog{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finalize sync log %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) ListSyncLogs(ctx context.Context, metricID uuid.UUID, limit int) ([]*models.SyncLog, error) {
	var logs []*models.SyncLog
	err := s.db.WithContext(ctx).
		Where("metric_id = ?", metricID).
		Order("started_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs for metric %s: %w", metricID, err)
	}
	return logs, nil
}

func (s *GormStore) CreateAnomaly(ctx context.Context, anomaly *models.MetricAnomaly) error {
	if err := s.db.WithContext(ctx).Create(anomaly).Error; err != nil {
		return fmt.Errorf("failed to create anomaly: %w", err)
	}
	return nil
}

func (s *GormStore) AttachAlert(ctx context.Context, anomalyID, alertID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&models.MetricAnomaly{}).
		Where("id = ?", anomalyID).
		Update("alert_id", alertID).Error
	if err != nil {
		return fmt.Errorf("failed to attach alert %s to anomaly %s: %w", alertID, anomalyID, err)
	}
	return nil
}

func (s *GormStore) ListAnomalies(ctx context.Context, filter *AnomalyFilter) ([]*models.MetricAnomaly, error) {
	query := s.db.WithContext(ctx).Model(&models.MetricAnomaly{})
	if filter != nil {
		if filter.TenantID != nil {
			query = query.Where("tenant_id = ?", *filter.TenantID)
		}
		if filter.MetricID != nil {
			query = query.Where("metric_id = ?", *filter.MetricID)
		}
		if len(filter.Kinds) > 0 {
			query = query.Where("kind IN ?", filter.Kinds)
		}
		if len(filter.Severities) > 0 {
			query = query.Where("severity IN ?", filter.Severities)
		}
		if filter.Since != nil {
			query = query.Where("detected_at >= ?", *filter.Since)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var anomalies []*models.MetricAnomaly
	if err := query.Order("detected_at DESC").Find(&anomalies).Error; err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	return anomalies, nil
}

func (s *GormStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}
