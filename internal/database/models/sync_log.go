package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncLog is the audit record of one sync attempt. A row is created in the
// running state when the attempt starts and finalized on every exit path; a
// row left permanently running indicates a crashed run, never a successful
// code path.
type SyncLog struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	MetricID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"metric_id"`
	Status           string     `gorm:"not null;default:'running';index" json:"status"`
	StartedAt        time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed int        `gorm:"not null;default:0" json:"records_processed"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	Details          JSONMap    `gorm:"type:jsonb" json:"details,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for the SyncLog model
func (SyncLog) TableName() string {
	return "sync_logs"
}

// IsTerminal reports whether the log row has been finalized.
func (l *SyncLog) IsTerminal() bool {
	return l.Status == SyncStatusSuccess || l.Status == SyncStatusError
}
