package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/model"
)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleAfterHours: 48})

	snap := &Snapshot{
		CollectedAt: now,
		Jobs: []JobHealth{
			{Job: "crawl", Total: 3, Complete: 3, LastStatus: model.RunStatusComplete, LastCompletedAt: ago(2 * time.Hour)},
		},
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_JobFailure(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleAfterHours: 48})

	snap := &Snapshot{
		CollectedAt:   now,
		LookbackHours: 24,
		Jobs: []JobHealth{
			{Job: "history", Total: 2, Failed: 1, LastStatus: model.RunStatusFailed, LastError: "boom", LastCompletedAt: ago(time.Hour)},
		},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertJobFailure, alerts[0].Type)
	assert.Equal(t, "history", alerts[0].Job)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "1 failed / 2 runs in last 24h")
	assert.Contains(t, alerts[0].Message, "boom")
}

func TestAlerter_Evaluate_Stale(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleAfterHours: 48})

	snap := &Snapshot{
		CollectedAt: now,
		Jobs: []JobHealth{
			{Job: "crawl", LastStatus: model.RunStatusComplete, LastCompletedAt: ago(72 * time.Hour)},
			{Job: "history"},
		},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertJobStale, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "crawl last completed 72h0m0s ago")
	assert.Equal(t, AlertJobStale, alerts[1].Type)
	assert.Contains(t, alerts[1].Message, "history has never completed")
}

func TestAlerter_Evaluate_StaleDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	snap := &Snapshot{CollectedAt: now, Jobs: []JobHealth{{Job: "crawl"}}}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, "crawl", alert.Job)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	alerts := []Alert{
		{Type: AlertJobFailure, Job: "crawl", Severity: "high", Message: "test"},
		{Type: AlertJobStale, Job: "crawl", Severity: "medium", Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertJobFailure, Job: "crawl"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertJobFailure}})
	assert.Equal(t, 0, sent)
}
