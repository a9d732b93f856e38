// Package models contains the database models for the scorecard metrics
// platform. These models represent metrics, their time-series values, the
// external data sources they sync from, and the anomalies and alerts raised
// against them. All rows are tenant-scoped.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Common constants for model validation
const (
	// Metric types
	MetricTypeManual       = "manual"
	MetricTypeSingleWindow = "single_window"
	MetricTypeMultiWindow  = "multi_window"
	MetricTypeCalculated   = "calculated"

	// Legacy source types (pre-migration metrics carry these instead of a
	// data source reference)
	SourceTypeManual   = "manual"
	SourceTypeHubSpot  = "hubspot"
	SourceTypeBigQuery = "bigquery"

	// Value sources
	ValueSourceManual     = "manual"
	ValueSourceHubSpot    = "hubspot"
	ValueSourceBigQuery   = "bigquery"
	ValueSourceRollup     = "rollup"
	ValueSourceCalculated = "calculated"

	// Rollup aggregation types
	AggregationSum   = "sum"
	AggregationAvg   = "avg"
	AggregationCount = "count"
	AggregationMin   = "min"
	AggregationMax   = "max"

	// Data source providers
	ProviderHubSpot  = "hubspot"
	ProviderBigQuery = "bigquery"

	// Status values for metrics and data sources
	StatusActive   = "active"
	StatusInactive = "inactive"

	// Sync log status values
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"

	// Formula reference kinds
	RefKindMetric     = "metric"
	RefKindDataSource = "data_source"

	// Anomaly kinds
	AnomalyKindThreshold = "threshold"
	AnomalyKindDeviation = "deviation"
	AnomalyKindTrend     = "trend"
	AnomalyKindMissing   = "missing"

	// Anomaly severities
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"

	// Alert severities
	AlertSeverityNormal = "normal"
	AlertSeverityUrgent = "urgent"

	// Threshold rule types
	ThresholdAbove         = "above"
	ThresholdBelow         = "below"
	ThresholdChangePercent = "change_percent"
)

// StringList is a JSONB-backed string slice used for window sets.
type StringList []string

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for StringList", value)
	}
	return json.Unmarshal(b, s)
}

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

// JSONMap is a JSONB-backed free-form detail map.
type JSONMap map[string]interface{}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for JSONMap", value)
	}
	return json.Unmarshal(b, m)
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(m)
}
