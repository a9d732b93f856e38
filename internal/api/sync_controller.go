package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/jobs"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/metricsync"
)

// SyncController handles sync trigger and sync history endpoints.
type SyncController struct {
	runner *jobs.Runner
	store  store.Store
	tracer trace.Tracer
}

// NewSyncController creates a new sync controller
func NewSyncController(runner *jobs.Runner, st store.Store) *SyncController {
	return &SyncController{
		runner: runner,
		store:  st,
		tracer: otel.Tracer("sync-controller"),
	}
}

// RegisterRoutes registers sync routes with the gin router
func (sc *SyncController) RegisterRoutes(router *gin.RouterGroup) {
	metricRoutes := router.Group("/metrics")
	{
		metricRoutes.POST("/sync", sc.SyncAllMetrics)
		metricRoutes.POST("/rollup/recompute", sc.RecomputeRollups)
		metricRoutes.POST("/:metric_id/sync", sc.SyncMetric)
		metricRoutes.GET("/:metric_id/sync-logs", sc.GetSyncLogs)
	}
}

// SyncAllMetrics runs a full sync-and-scan pass over every sync-enabled
// metric, identical to the scheduled run.
func (sc *SyncController) SyncAllMetrics(c *gin.Context) {
	ctx, span := sc.tracer.Start(c.Request.Context(), "sync_controller.sync_all_metrics")
	defer span.End()

	result, err := sc.runner.ScheduledMetricSync(ctx)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "SYNC_FAILED",
			Details: fmt.Sprintf("Failed to run batch sync: %v", err),
		})
		return
	}

	span.SetAttributes(
		attribute.Int("sync.total", result.Batch.Total),
		attribute.Int("sync.failed", result.Batch.Failed),
	)
	c.JSON(http.StatusOK, result)
}

// SyncMetric syncs one metric on demand and scans it for anomalies.
func (sc *SyncController) SyncMetric(c *gin.Context) {
	ctx, span := sc.tracer.Start(c.Request.Context(), "sync_controller.sync_metric")
	defer span.End()

	metricID, err := uuid.Parse(c.Param("metric_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_METRIC_ID",
			Details: fmt.Sprintf("Invalid metric id: %v", err),
		})
		return
	}
	span.SetAttributes(attribute.String("metric.id", metricID.String()))

	result, err := sc.runner.ManualMetricSync(ctx, metricID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "METRIC_NOT_FOUND",
			Details: fmt.Sprintf("Metric %s does not exist", metricID),
		})
		return
	case errors.Is(err, metricsync.ErrManualMetric):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "MANUAL_METRIC",
			Details: "Manual metrics are fed by user entry and cannot be synced",
		})
		return
	case err != nil:
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "SYNC_FAILED",
			Details: fmt.Sprintf("Failed to sync metric: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecomputeRollups recomputes the requested rollup metrics, or all of them.
func (sc *SyncController) RecomputeRollups(c *gin.Context) {
	ctx, span := sc.tracer.Start(c.Request.Context(), "sync_controller.recompute_rollups")
	defer span.End()

	var request RecomputeRollupsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "INVALID_REQUEST",
				Details: fmt.Sprintf("Invalid request body: %v", err),
			})
			return
		}
	}

	results, err := sc.runner.RecomputeRollups(ctx, request.MetricIDs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "METRIC_NOT_FOUND",
				Details: err.Error(),
			})
			return
		}
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "ROLLUP_RECOMPUTE_FAILED",
			Details: fmt.Sprintf("Failed to recompute rollups: %v", err),
		})
		return
	}

	span.SetAttributes(attribute.Int("rollup.count", len(results)))
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

// GetSyncLogs returns a metric's sync history, most recent first.
func (sc *SyncController) GetSyncLogs(c *gin.Context) {
	ctx, span := sc.tracer.Start(c.Request.Context(), "sync_controller.get_sync_logs")
	defer span.End()

	metricID, err := uuid.Parse(c.Param("metric_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_METRIC_ID",
			Details: fmt.Sprintf("Invalid metric id: %v", err),
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "INVALID_LIMIT",
				Details: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	if _, err := sc.store.GetMetric(ctx, metricID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "METRIC_NOT_FOUND",
				Details: fmt.Sprintf("Metric %s does not exist", metricID),
			})
			return
		}
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "SYNC_LOGS_FAILED",
			Details: fmt.Sprintf("Failed to load metric: %v", err),
		})
		return
	}

	logs, err := sc.store.ListSyncLogs(ctx, metricID, limit)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "SYNC_LOGS_FAILED",
			Details: fmt.Sprintf("Failed to list sync logs: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, SyncLogsResponse{
		MetricID: metricID,
		SyncLogs: logs,
		Total:    len(logs),
	})
}
