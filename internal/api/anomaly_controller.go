package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/jobs"
)

// AnomalyController handles anomaly scan and listing endpoints.
type AnomalyController struct {
	runner *jobs.Runner
	store  store.Store
	tracer trace.Tracer
}

// NewAnomalyController creates a new anomaly controller
func NewAnomalyController(runner *jobs.Runner, st store.Store) *AnomalyController {
	return &AnomalyController{
		runner: runner,
		store:  st,
		tracer: otel.Tracer("anomaly-controller"),
	}
}

// RegisterRoutes registers anomaly routes with the gin router
func (ac *AnomalyController) RegisterRoutes(router *gin.RouterGroup) {
	anomalyRoutes := router.Group("/anomalies")
	{
		anomalyRoutes.POST("/scan", ac.Scan)
		anomalyRoutes.GET("", ac.ListAnomalies)
	}
}

// Scan runs anomaly detection over every active metric without syncing.
func (ac *AnomalyController) Scan(c *gin.Context) {
	ctx, span := ac.tracer.Start(c.Request.Context(), "anomaly_controller.scan")
	defer span.End()

	report, err := ac.runner.RunAnomalyDetection(ctx)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "SCAN_FAILED",
			Details: fmt.Sprintf("Failed to run anomaly scan: %v", err),
		})
		return
	}

	span.SetAttributes(
		attribute.Int("anomaly.metrics_scanned", report.MetricsScanned),
		attribute.Int("anomaly.found", report.AnomaliesFound),
	)
	c.JSON(http.StatusOK, report)
}

// ListAnomalies lists detected anomalies with optional filtering by metric,
// kind, severity and detection time.
func (ac *AnomalyController) ListAnomalies(c *gin.Context) {
	ctx, span := ac.tracer.Start(c.Request.Context(), "anomaly_controller.list_anomalies")
	defer span.End()

	filter := &store.AnomalyFilter{Limit: 100}

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "INVALID_LIMIT",
				Details: "limit must be a positive integer",
			})
			return
		}
		filter.Limit = parsed
	}

	if raw := c.Query("metric_id"); raw != "" {
		metricID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "INVALID_METRIC_ID",
				Details: fmt.Sprintf("Invalid metric id: %v", err),
			})
			return
		}
		filter.MetricID = &metricID
	}

	if raw := c.Query("tenant_id"); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "INVALID_TENANT_ID",
				Details: fmt.Sprintf("Invalid tenant id: %v", err),
			})
			return
		}
		filter.TenantID = &tenantID
	}

	if raw := c.Query("kind"); raw != "" {
		filter.Kinds = splitParam(raw)
	}
	if raw := c.Query("severity"); raw != "" {
		filter.Severities = splitParam(raw)
	}

	since, err := parseTimeParam(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_SINCE",
			Details: "since must be an RFC3339 timestamp",
		})
		return
	}
	filter.Since = since

	anomalies, err := ac.store.ListAnomalies(ctx, filter)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "ANOMALY_LIST_FAILED",
			Details: fmt.Sprintf("Failed to list anomalies: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, AnomaliesResponse{
		Anomalies: anomalies,
		Total:     len(anomalies),
	})
}

// splitParam splits a comma-separated query parameter into trimmed values.
func splitParam(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
