package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metric represents a tracked KPI owned by a profile within a tenant.
//
// The metric_type field selects the sync strategy: manual metrics are only fed
// by user entry, single_window and multi_window metrics query a data source
// over symbolic time windows, and calculated metrics evaluate a formula over
// other metrics and data sources. Metrics created before the windowed model
// migration carry a source_type instead and are synced as a single untagged
// series.
type Metric struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name        string    `gorm:"not null;index" json:"name"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null" json:"owner_id"`
	TeamID      *uuid.UUID `gorm:"type:uuid" json:"team_id,omitempty"`

	MetricType string `gorm:"not null;default:'manual';index" json:"metric_type"`
	SourceType string `gorm:"not null;default:'manual'" json:"source_type"`

	Goal            *float64 `json:"goal,omitempty"`
	Unit            string   `json:"unit"`
	ThresholdRed    *float64 `json:"threshold_red,omitempty"`
	ThresholdYellow *float64 `json:"threshold_yellow,omitempty"`

	// Windowed sync configuration
	DataSourceID *uuid.UUID  `gorm:"type:uuid;index" json:"data_source_id,omitempty"`
	TimeWindow   *string     `json:"time_window,omitempty"`
	TimeWindows  StringList  `gorm:"type:jsonb" json:"time_windows,omitempty"`
	WindowGoals  WindowGoals `gorm:"type:jsonb" json:"window_goals,omitempty"`

	// Calculated metric configuration
	Formula           string            `json:"formula,omitempty"`
	FormulaReferences FormulaReferences `gorm:"type:jsonb" json:"formula_references,omitempty"`

	// Rollup configuration
	IsRollup        bool       `gorm:"not null;default:false" json:"is_rollup"`
	AggregationType string     `json:"aggregation_type,omitempty"`
	ParentMetricID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_metric_id,omitempty"`

	// Sync state
	SyncEnabled   bool       `gorm:"not null;default:false" json:"sync_enabled"`
	SyncFrequency string     `gorm:"default:'daily'" json:"sync_frequency"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	SyncError     *string    `json:"sync_error,omitempty"`

	Status    string     `gorm:"not null;default:'active'" json:"status"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	DataSource *DataSource   `gorm:"foreignKey:DataSourceID" json:"data_source,omitempty"`
	Values     []MetricValue `gorm:"foreignKey:MetricID" json:"values,omitempty"`
	Children   []Metric      `gorm:"foreignKey:ParentMetricID" json:"children,omitempty"`
}

// WindowGoal holds the per-window goal and thresholds of a multi-window metric.
type WindowGoal struct {
	Goal            *float64 `json:"goal,omitempty"`
	ThresholdRed    *float64 `json:"threshold_red,omitempty"`
	ThresholdYellow *float64 `json:"threshold_yellow,omitempty"`
}

// WindowGoals maps a time window name to its goal configuration.
type WindowGoals map[string]WindowGoal

func (w *WindowGoals) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for WindowGoals", value)
	}
	return json.Unmarshal(b, w)
}

func (w WindowGoals) Value() (driver.Value, error) {
	if w == nil {
		return json.Marshal(map[string]WindowGoal{})
	}
	return json.Marshal(w)
}

// FormulaReference binds one variable of a calculated metric's formula to
// either another metric's latest value or a data-source query over a window.
type FormulaReference struct {
	Variable   string    `json:"variable"`
	Kind       string    `json:"kind"` // metric or data_source
	RefID      uuid.UUID `json:"ref_id"`
	TimeWindow string    `json:"time_window,omitempty"`
}

// FormulaReferences is the JSONB-backed reference list.
type FormulaReferences []FormulaReference

func (f *FormulaReferences) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for FormulaReferences", value)
	}
	return json.Unmarshal(b, f)
}

func (f FormulaReferences) Value() (driver.Value, error) {
	if f == nil {
		return json.Marshal([]FormulaReference{})
	}
	return json.Marshal(f)
}

// TableName returns the table name for the Metric model
func (Metric) TableName() string {
	return "metrics"
}

// IsActive checks whether the metric is active and not soft-deleted.
func (m *Metric) IsActive() bool {
	return m.Status == StatusActive && m.DeletedAt == nil
}

// IsManual reports whether the metric is fed only by user entry.
func (m *Metric) IsManual() bool {
	if m.MetricType == MetricTypeManual {
		return m.SourceType == SourceTypeManual && !m.IsRollup
	}
	return false
}

// IsLegacyExternal reports whether the metric predates the windowed model and
// syncs through a provider-specific source_type.
func (m *Metric) IsLegacyExternal() bool {
	return m.MetricType == MetricTypeManual &&
		(m.SourceType == SourceTypeHubSpot || m.SourceType == SourceTypeBigQuery)
}

// EffectiveAggregation returns the rollup aggregation, defaulting to sum.
func (m *Metric) EffectiveAggregation() string {
	if m.AggregationType == "" {
		return AggregationSum
	}
	return m.AggregationType
}

// Validate enforces the shape invariants of each metric type.
func (m *Metric) Validate() error {
	switch m.MetricType {
	case MetricTypeSingleWindow:
		if m.DataSourceID == nil {
			return fmt.Errorf("single_window metric %s requires a data_source_id", m.Name)
		}
		if m.TimeWindow == nil || *m.TimeWindow == "" {
			return fmt.Errorf("single_window metric %s requires exactly one time_window", m.Name)
		}
	case MetricTypeMultiWindow:
		if m.DataSourceID == nil {
			return fmt.Errorf("multi_window metric %s requires a data_source_id", m.Name)
		}
		if len(m.TimeWindows) == 0 {
			return fmt.Errorf("multi_window metric %s requires a non-empty time_windows set", m.Name)
		}
	case MetricTypeCalculated:
		if m.Formula == "" {
			return fmt.Errorf("calculated metric %s requires a formula", m.Name)
		}
		if len(m.FormulaReferences) == 0 {
			return fmt.Errorf("calculated metric %s requires formula_references", m.Name)
		}
		if m.DataSourceID != nil {
			return fmt.Errorf("calculated metric %s cannot also reference a data_source_id", m.Name)
		}
	case MetricTypeManual:
		// Nothing to enforce; legacy external config lives on source_type.
	default:
		return fmt.Errorf("unknown metric_type %q on metric %s", m.MetricType, m.Name)
	}
	if m.IsRollup && m.AggregationType != "" {
		switch m.AggregationType {
		case AggregationSum, AggregationAvg, AggregationCount, AggregationMin, AggregationMax:
		default:
			return fmt.Errorf("unknown aggregation_type %q on rollup metric %s", m.AggregationType, m.Name)
		}
	}
	return nil
}
