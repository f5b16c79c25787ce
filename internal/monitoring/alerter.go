package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailure AlertType = "job_failure"
	AlertJobStale   AlertType = "job_stale"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Job       string         `json:"job"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot and sends alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts a snapshot triggers. A job whose latest run
// failed raises a failure alert; a job with no completed run inside
// StaleAfterHours raises a stale alert.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, h := range snap.Jobs {
		if h.LastStatus == model.RunStatusFailed {
			alerts = append(alerts, Alert{
				Type:     AlertJobFailure,
				Job:      h.Job,
				Severity: "high",
				Message: fmt.Sprintf("latest %s run failed (%d failed / %d runs in last %dh): %s",
					h.Job, h.Failed, h.Total, snap.LookbackHours, h.LastError),
				Details: map[string]any{
					"failed": h.Failed,
					"total":  h.Total,
					"error":  h.LastError,
				},
				Timestamp: now,
			})
		}

		if a.cfg.StaleAfterHours <= 0 {
			continue
		}
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if h.LastCompletedAt == nil || now.Sub(*h.LastCompletedAt) > limit {
			msg := fmt.Sprintf("%s has never completed", h.Job)
			details := map[string]any{"stale_after_hours": a.cfg.StaleAfterHours}
			if h.LastCompletedAt != nil {
				age := now.Sub(*h.LastCompletedAt).Truncate(time.Minute)
				msg = fmt.Sprintf("%s last completed %s ago, over the %dh limit", h.Job, age, a.cfg.StaleAfterHours)
				details["last_completed_at"] = h.LastCompletedAt.UTC()
			}
			alerts = append(alerts, Alert{
				Type:      AlertJobStale,
				Job:       h.Job,
				Severity:  "medium",
				Message:   msg,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("job", alert.Job),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("job", alert.Job),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
