package models

import (
	"time"

	"github.com/google/uuid"
)

// MetricValue is one immutable time-series point for a metric. Values are
// append-only: the current value of a (metric, window) pair is always the
// most recently recorded point for that pair. A nil TimeWindow tags the
// legacy/manual single series.
type MetricValue struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	MetricID   uuid.UUID `gorm:"type:uuid;not null;index:idx_metric_values_series" json:"metric_id"`
	Value      float64   `gorm:"not null" json:"value"`
	TimeWindow *string   `gorm:"index:idx_metric_values_series" json:"time_window,omitempty"`
	RecordedAt time.Time `gorm:"not null;index:idx_metric_values_series,sort:desc" json:"recorded_at"`
	Source     string    `gorm:"not null;default:'manual'" json:"source"`
	Note       *string   `json:"note,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for the MetricValue model
func (MetricValue) TableName() string {
	return "metric_values"
}
