package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// fakeRuns serves runs newest first, like the stores do.
type fakeRuns struct {
	runs    []model.Run
	listErr error
	filters []store.RunFilter
}

func (f *fakeRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Run
	for _, r := range f.runs {
		if filter.Job != "" && r.Job != filter.Job {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func run(job string, status model.RunStatus, startedAgo time.Duration, rows int64) model.Run {
	r := model.Run{Job: job, Status: status, StartedAt: now.Add(-startedAgo), Rows: rows}
	if status != model.RunStatusRunning {
		done := r.StartedAt.Add(time.Minute)
		r.CompletedAt = &done
	}
	if status == model.RunStatusFailed {
		r.Error = "b3: list companies: connection reset"
	}
	return r
}

func newCollector(f *fakeRuns, jobs ...string) *Collector {
	c := NewCollector(f, jobs)
	c.now = func() time.Time { return now }
	return c
}

func TestCollector_Collect(t *testing.T) {
	f := &fakeRuns{runs: []model.Run{
		run("history", model.RunStatusRunning, time.Hour, 0),
		run("crawl", model.RunStatusFailed, 2*time.Hour, 0),
		run("crawl", model.RunStatusComplete, 5*time.Hour, 120),
		run("history", model.RunStatusComplete, 6*time.Hour, 4000),
		run("crawl", model.RunStatusComplete, 30*time.Hour, 50),
	}}

	snap, err := newCollector(f, "crawl", "history").Collect(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, snap.Jobs, 2)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, now, snap.CollectedAt)

	crawl := snap.Jobs[0]
	assert.Equal(t, "crawl", crawl.Job)
	assert.Equal(t, 2, crawl.Total)
	assert.Equal(t, 1, crawl.Complete)
	assert.Equal(t, 1, crawl.Failed)
	assert.Equal(t, model.RunStatusFailed, crawl.LastStatus)
	assert.Contains(t, crawl.LastError, "connection reset")
	assert.Equal(t, int64(120), crawl.RowsInWindow)
	require.NotNil(t, crawl.LastCompletedAt)
	assert.Equal(t, now.Add(-5*time.Hour+time.Minute), *crawl.LastCompletedAt)

	history := snap.Jobs[1]
	assert.Equal(t, 1, history.Running)
	assert.Equal(t, 1, history.Complete)
	assert.Equal(t, model.RunStatusRunning, history.LastStatus)

	require.Len(t, f.filters, 2)
	assert.Equal(t, runsPerJob, f.filters[0].Limit)
}

func TestCollector_NoRuns(t *testing.T) {
	snap, err := newCollector(&fakeRuns{}, "crawl").Collect(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, snap.Jobs, 1)
	assert.Zero(t, snap.Jobs[0].Total)
	assert.Nil(t, snap.Jobs[0].LastCompletedAt)
	assert.Empty(t, snap.Jobs[0].LastStatus)
}

func TestCollector_ListError(t *testing.T) {
	f := &fakeRuns{listErr: errors.New("db down")}
	_, err := newCollector(f, "crawl").Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs for crawl")
}
