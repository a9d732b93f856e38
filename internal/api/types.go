// Package api exposes the engine's trigger and read endpoints as gin
// controllers. Sync, scan and rollup work is delegated to the job runner;
// read endpoints query the store directly.
package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RecomputeRollupsRequest selects which rollup metrics to recompute. An
// empty list means every active rollup.
type RecomputeRollupsRequest struct {
	MetricIDs []uuid.UUID `json:"metric_ids,omitempty"`
}

// SyncLogsResponse wraps a metric's sync history.
type SyncLogsResponse struct {
	MetricID uuid.UUID         `json:"metric_id"`
	SyncLogs []*models.SyncLog `json:"sync_logs"`
	Total    int               `json:"total"`
}

// AnomaliesResponse wraps an anomaly listing.
type AnomaliesResponse struct {
	Anomalies []*models.MetricAnomaly `json:"anomalies"`
	Total     int                     `json:"total"`
}

// parseTimeParam parses an RFC3339 query parameter, nil when absent.
func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
