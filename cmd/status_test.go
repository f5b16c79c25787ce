package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/marketdata-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := started.Add(2*time.Minute + 5*time.Second)
	runs := []model.Run{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Job:         "crawl",
			Status:      model.RunStatusComplete,
			StartedAt:   started,
			CompletedAt: &done,
			Rows:        1234,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Job:       "history",
			Status:    model.RunStatusRunning,
			StartedAt: started.Add(time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "JOB")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "crawl")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "1234")
	assert.Contains(t, output, "2m5s")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "running")
}

func TestFormatRunsList_LongError(t *testing.T) {
	started := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{{
		ID:        "abc",
		Job:       "history",
		Status:    model.RunStatusFailed,
		StartedAt: started,
		Error:     "history: load tickers: sqlite: database is locked while reading snapshot",
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.Contains(t, buf.String(), "failed")
	assert.Contains(t, buf.String(), "history: load tickers: sqlite: databa...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
