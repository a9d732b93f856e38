package models

import (
	"time"

	"github.com/google/uuid"
)

// MetricAnomaly is a detected deviation in a metric's recent values. Rows are
// created by the anomaly detector and never mutated afterwards except to
// attach a resolution timestamp or link the alert raised for them.
type MetricAnomaly struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	MetricID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"metric_id"`
	Kind             string     `gorm:"not null;index" json:"kind"` // threshold, deviation, trend, missing
	Severity         string     `gorm:"not null;index" json:"severity"`
	Value            float64    `json:"value"`
	ExpectedValue    float64    `json:"expected_value"`
	DeviationPercent *float64   `json:"deviation_percent,omitempty"`
	TimeWindow       *string    `json:"time_window,omitempty"`
	Message          string     `gorm:"not null" json:"message"`
	DetectedAt       time.Time  `gorm:"not null;index" json:"detected_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	AlertID          *uuid.UUID `gorm:"type:uuid" json:"alert_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for the MetricAnomaly model
func (MetricAnomaly) TableName() string {
	return "metric_anomalies"
}

// Alert is a user-facing notification row raised for a non-informational
// anomaly. Delivery is owned by a downstream system; the engine only persists
// the row and back-links it from the anomaly.
type Alert struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Kind        string     `gorm:"not null;default:'metric_anomaly'" json:"kind"`
	Severity    string     `gorm:"not null;default:'normal'" json:"severity"` // normal, urgent
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	AnomalyID   *uuid.UUID `gorm:"type:uuid" json:"anomaly_id,omitempty"`
	MetricID    *uuid.UUID `gorm:"type:uuid;index" json:"metric_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for the Alert model
func (Alert) TableName() string {
	return "alerts"
}
