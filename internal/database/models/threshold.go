package models

import (
	"time"

	"github.com/google/uuid"
)

// MetricThreshold is one active alerting rule on a metric. The rule fires
// only once the breach condition has held for ConsecutivePeriods trailing
// observations, most-recent-inclusive.
type MetricThreshold struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID           uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	MetricID           uuid.UUID `gorm:"type:uuid;not null;index" json:"metric_id"`
	Type               string    `gorm:"not null" json:"type"` // above, below, change_percent
	Threshold          float64   `gorm:"not null" json:"threshold"`
	Severity           string    `gorm:"not null;default:'warning'" json:"severity"`
	ConsecutivePeriods int       `gorm:"not null;default:1" json:"consecutive_periods"`
	Active             bool      `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for the MetricThreshold model
func (MetricThreshold) TableName() string {
	return "metric_thresholds"
}

// RequiredPeriods returns the consecutive-breach requirement, minimum 1.
func (t *MetricThreshold) RequiredPeriods() int {
	if t.ConsecutivePeriods < 1 {
		return 1
	}
	return t.ConsecutivePeriods
}
