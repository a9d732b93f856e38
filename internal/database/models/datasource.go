package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataSource represents a reusable external-query definition for a tenant.
// It is created through the configuration UI, referenced by one or more
// metrics, and never mutated by the sync engine.
type DataSource struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name     string    `gorm:"not null;index" json:"name"`
	Provider string    `gorm:"not null;index" json:"provider"` // hubspot, bigquery

	// Provider-specific query parameters (stored as JSON for flexibility)
	HubSpot  HubSpotQuery  `gorm:"type:jsonb" json:"hubspot"`
	BigQuery BigQueryQuery `gorm:"type:jsonb" json:"bigquery"`

	Status    string     `gorm:"not null;default:'active'" json:"status"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Metrics []Metric `gorm:"foreignKey:DataSourceID" json:"metrics,omitempty"`
}

// HubSpotQuery describes a CRM object aggregation query.
type HubSpotQuery struct {
	ObjectType   string          `json:"object_type"` // deals, contacts, companies, tickets
	Property     string          `json:"property,omitempty"`
	Aggregation  string          `json:"aggregation"`             // count, sum, avg, min, max
	DateProperty string          `json:"date_property,omitempty"` // defaults to createdate
	Filters      []HubSpotFilter `json:"filters,omitempty"`
}

// HubSpotFilter is one property filter applied to the CRM search.
type HubSpotFilter struct {
	Property string `json:"property"`
	Operator string `json:"operator"` // EQ, NEQ, GT, GTE, LT, LTE, HAS_PROPERTY
	Value    string `json:"value,omitempty"`
}

// BigQueryQuery describes a parameterized warehouse query. The query template
// may contain {{start}}, {{end}} and {{today}} placeholders which are
// substituted with ISO date strings at fetch time.
type BigQueryQuery struct {
	Query       string `json:"query"`
	ValueColumn string `json:"value_column"`
}

// GORM hooks for JSON serialization
func (q *HubSpotQuery) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for HubSpotQuery", value)
	}
	return json.Unmarshal(b, q)
}

func (q HubSpotQuery) Value() (driver.Value, error) {
	return json.Marshal(q)
}

func (q *BigQueryQuery) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for BigQueryQuery", value)
	}
	return json.Unmarshal(b, q)
}

func (q BigQueryQuery) Value() (driver.Value, error) {
	return json.Marshal(q)
}

// TableName returns the table name for the DataSource model
func (DataSource) TableName() string {
	return "data_sources"
}

// IsActive checks if the data source is active
func (d *DataSource) IsActive() bool {
	return d.Status == StatusActive && d.DeletedAt == nil
}
