// Package adapters defines the uniform contract every external metric source
// must satisfy. The sync processor and formula evaluator depend only on this
// contract; swapping providers never requires changes to either.
package adapters

import (
	"context"

	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

// Provider identifies an external system a metric value can be fetched from.
type Provider string

const (
	ProviderHubSpot  Provider = "hubspot"
	ProviderBigQuery Provider = "bigquery"
)

// Aggregation selects how a CRM adapter reduces matched records to a value.
type Aggregation string

const (
	AggregationCount Aggregation = "count"
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
)

// Filter is one provider-agnostic property filter.
type Filter struct {
	Property string `json:"property"`
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
}

// FetchConfig carries the provider-specific query parameters of a data
// source. Only the fields relevant to the target provider are set.
type FetchConfig struct {
	// CRM object query (HubSpot)
	ObjectType   string      `json:"object_type,omitempty"`
	Property     string      `json:"property,omitempty"`
	Aggregation  Aggregation `json:"aggregation,omitempty"`
	DateProperty string      `json:"date_property,omitempty"`
	Filters      []Filter    `json:"filters,omitempty"`

	// Warehouse query (BigQuery)
	Query       string `json:"query,omitempty"`
	ValueColumn string `json:"value_column,omitempty"`
}

// SyncResult is the uniform outcome of a fetch. Provider errors are captured
// here; adapters never panic or return Go errors past their boundary.
type SyncResult struct {
	Success          bool    `json:"success"`
	Value            float64 `json:"value,omitempty"`
	RecordsProcessed int     `json:"records_processed,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Failure builds a failed SyncResult from an error message.
func Failure(msg string) SyncResult {
	return SyncResult{Success: false, Error: msg}
}

// SourceAdapter is the contract every external metric source implements.
type SourceAdapter interface {
	// Provider returns the provider this adapter serves.
	Provider() Provider

	// Configured reports whether the required credentials are present.
	Configured() bool

	// FetchMetric executes the configured query, optionally constrained to a
	// time range, and returns the scalar result.
	FetchMetric(ctx context.Context, config FetchConfig, timeRange *timewindow.Range) SyncResult
}

// Registry maps providers to constructed adapters. Adapters are built once at
// startup and injected; there are no lazily-initialized singletons.
type Registry map[Provider]SourceAdapter

// For returns the adapter for a provider, or nil when none is registered.
func (r Registry) For(p Provider) SourceAdapter {
	if r == nil {
		return nil
	}
	return r[p]
}
