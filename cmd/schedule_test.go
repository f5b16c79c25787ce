package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/crawler"
	"github.com/sells-group/marketdata-cli/internal/engine"
	"github.com/sells-group/marketdata-cli/internal/history"
	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/store"
)

func TestScheduledJobs(t *testing.T) {
	assert.Equal(t, []string{crawler.JobName, history.JobName},
		scheduledJobs(config.ScheduleConfig{Crawl: "@daily", History: "@hourly"}))
	assert.Equal(t, []string{history.JobName}, scheduledJobs(config.ScheduleConfig{History: "@hourly"}))
	assert.Empty(t, scheduledJobs(config.ScheduleConfig{}))
}

func TestScheduler_Register(t *testing.T) {
	c := cron.New()
	s := newScheduler(nil)

	require.NoError(t, s.register(context.Background(), c, config.ScheduleConfig{
		Crawl:   "0 20 * * 1-5",
		History: "30 21 * * 1-5",
	}))
	assert.Len(t, c.Entries(), 2)
}

func TestScheduler_RegisterBadSpec(t *testing.T) {
	err := newScheduler(nil).register(context.Background(), cron.New(), config.ScheduleConfig{Crawl: "every day"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule: add crawl")
}

func newScheduleEngine(t *testing.T, jobs ...engine.Job) (*engine.Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return engine.New(st, engine.NewRegistry(jobs...)), st
}

func TestScheduler_RunRecordsJob(t *testing.T) {
	var calls atomic.Int32
	job := engine.NewJob(crawler.JobName, func(context.Context) (*engine.Result, error) {
		calls.Add(1)
		return &engine.Result{Rows: 7}, nil
	})
	eng, st := newScheduleEngine(t, job)

	s := newScheduler(eng)
	s.run(context.Background(), crawler.JobName)
	s.run(context.Background(), crawler.JobName)

	assert.Equal(t, int32(2), calls.Load())
	runs, err := st.ListRuns(context.Background(), store.RunFilter{Job: crawler.JobName})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, int64(7), runs[0].Rows)
}

func TestScheduler_RunFailureIsRecorded(t *testing.T) {
	job := engine.NewJob(history.JobName, func(context.Context) (*engine.Result, error) {
		return nil, errors.New("download failed")
	})
	eng, st := newScheduleEngine(t, job)

	newScheduler(eng).run(context.Background(), history.JobName)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "download failed")
}

func TestScheduler_RunSkipsAfterCancel(t *testing.T) {
	var calls atomic.Int32
	job := engine.NewJob(crawler.JobName, func(context.Context) (*engine.Result, error) {
		calls.Add(1)
		return &engine.Result{}, nil
	})
	eng, _ := newScheduleEngine(t, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	newScheduler(eng).run(ctx, crawler.JobName)
	assert.Zero(t, calls.Load())
}

func TestCronLogger(t *testing.T) {
	l := cronLogger{zap.NewNop()}
	assert.NotPanics(t, func() {
		l.Info("tick", "entry", 1)
		l.Error(errors.New("boom"), "job panicked", "entry", 1)
	})
}
