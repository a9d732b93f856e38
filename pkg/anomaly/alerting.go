package anomaly

import (
	"context"
	"fmt"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// raiseAlert persists an alert row for a non-informational anomaly and
// back-links the alert onto the anomaly. Delivery (Slack, email) belongs to a
// downstream system reading the alerts table.
func (d *Detector) raiseAlert(ctx context.Context, metric *models.Metric, anomaly *models.MetricAnomaly) error {
	severity := models.AlertSeverityNormal
	if anomaly.Severity == models.SeverityCritical {
		severity = models.AlertSeverityUrgent
	}

	alert := &models.Alert{
		TenantID:    metric.TenantID,
		Kind:        "metric_anomaly",
		Severity:    severity,
		Title:       fmt.Sprintf("Anomaly on metric %q", metric.Name),
		Description: anomaly.Message,
		AnomalyID:   &anomaly.ID,
		MetricID:    &metric.ID,
	}
	if err := d.store.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	if err := d.store.AttachAlert(ctx, anomaly.ID, alert.ID); err != nil {
		return fmt.Errorf("failed to attach alert to anomaly: %w", err)
	}
	anomaly.AlertID = &alert.ID

	d.logger.WithFields(map[string]interface{}{
		"tenant_id": metric.TenantID.String(),
		"metric_id": metric.ID.String(),
		"alert_id":  alert.ID.String(),
		"severity":  severity,
	}).Info("Alert raised for anomaly")
	return nil
}
