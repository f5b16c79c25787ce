package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// runsPerJob bounds how much of the run log is scanned per job.
const runsPerJob = 500

// JobHealth summarizes one job's runs.
type JobHealth struct {
	Job string `json:"job"`

	// Counts within the lookback window.
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Running  int `json:"running"`

	LastStatus      model.RunStatus `json:"last_status,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	LastCompletedAt *time.Time      `json:"last_completed_at,omitempty"`
	RowsInWindow    int64           `json:"rows_in_window"`
}

// Snapshot holds a point-in-time view of job health.
type Snapshot struct {
	Jobs          []JobHealth `json:"jobs"`
	LookbackHours int         `json:"lookback_hours"`
	CollectedAt   time.Time   `json:"collected_at"`
}

// RunLister is the slice of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers job health from the run log.
type Collector struct {
	runs RunLister
	jobs []string
	now  func() time.Time
}

// NewCollector creates a collector for the named jobs.
func NewCollector(runs RunLister, jobs []string) *Collector {
	return &Collector{runs: runs, jobs: jobs, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for _, job := range c.jobs {
		runs, err := c.runs.ListRuns(ctx, store.RunFilter{Job: job, Limit: runsPerJob})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list runs for %s", job)
		}

		h := JobHealth{Job: job}
		// Runs arrive newest first.
		if len(runs) > 0 {
			h.LastStatus = runs[0].Status
			h.LastError = runs[0].Error
		}
		for _, r := range runs {
			if r.Status == model.RunStatusComplete && h.LastCompletedAt == nil {
				h.LastCompletedAt = r.CompletedAt
			}
			if r.StartedAt.Before(cutoff) {
				continue
			}
			h.Total++
			switch r.Status {
			case model.RunStatusComplete:
				h.Complete++
				h.RowsInWindow += r.Rows
			case model.RunStatusFailed:
				h.Failed++
			case model.RunStatusRunning:
				h.Running++
			}
		}
		snap.Jobs = append(snap.Jobs, h)
	}

	return snap, nil
}
