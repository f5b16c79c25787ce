package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketdata-cli/internal/metrics"
	"github.com/sells-group/marketdata-cli/internal/resilience"
)

func newTestOrchestrator(limit int, timeout time.Duration) (*Orchestrator, *metrics.Set) {
	m := metrics.New()
	return New(Options{Scope: "test", Limit: limit, UnitTimeout: timeout, Metrics: m}), m
}

func TestRun_NeverExceedsLimit(t *testing.T) {
	o, _ := newTestOrchestrator(10, 0)

	var current, observedMax atomic.Int64
	units := make([]int, 500)
	for i := range units {
		units[i] = i
	}

	out := Run(context.Background(), o, units, func(int) string { return "unit" }, func(ctx context.Context, u int) (int, error) {
		n := current.Add(1)
		for {
			m := observedMax.Load()
			if n <= m || observedMax.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		current.Add(-1)
		return u, nil
	})

	seen := make(map[int]bool)
	for r := range out {
		seen[r] = true
	}

	assert.Len(t, seen, 500)
	assert.LessOrEqual(t, observedMax.Load(), int64(10))
	assert.LessOrEqual(t, o.Stats().PeakInFlight, int64(10))
	assert.Equal(t, int64(0), o.Stats().InFlight)
	assert.Equal(t, int64(500), o.Stats().Succeeded)
}

func TestFetch_TransientFailureResolvesToNoResult(t *testing.T) {
	o, m := newTestOrchestrator(2, 0)

	r, ok := Fetch(context.Background(), o, "detail 9512", func(ctx context.Context) (string, error) {
		return "ignored", resilience.NewTransientError(errors.New("http 500"), 500)
	})
	assert.False(t, ok)
	assert.Empty(t, r)
	assert.Equal(t, int64(1), o.Stats().Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitFailures.WithLabelValues("test", "status")))
}

func TestFetch_UnitTimeoutDoesNotCancelRun(t *testing.T) {
	o, _ := newTestOrchestrator(2, 20*time.Millisecond)
	ctx := context.Background()

	_, ok := Fetch(ctx, o, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.False(t, ok)
	require.NoError(t, ctx.Err())

	v, ok := Fetch(ctx, o, "fast", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestFetch_RunCancelled(t *testing.T) {
	o, m := newTestOrchestrator(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, ok := Fetch(ctx, o, "never", func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.False(t, ok)
	assert.False(t, called)
	assert.Equal(t, int64(0), o.Stats().Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Units.WithLabelValues("test", "cancelled")))
}

func TestDo_ReleasesSlotOnPanicFreeErrorPaths(t *testing.T) {
	o, _ := newTestOrchestrator(1, 0)
	for range 5 {
		err := o.Do(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
		require.Error(t, err)
	}
	assert.Equal(t, int64(0), o.Stats().InFlight)
}

func TestNestedSiblingsDoNotDeadlock(t *testing.T) {
	o, _ := newTestOrchestrator(1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A parent fetch followed by concurrent child fetches, all under a limit of 1.
	parent, ok := Fetch(ctx, o, "parent", func(ctx context.Context) (int, error) { return 3, nil })
	require.True(t, ok)

	var wg sync.WaitGroup
	var sum atomic.Int64
	for i := range parent {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, ok := Fetch(ctx, o, "child", func(ctx context.Context) (int, error) { return i + 1, nil }); ok {
				sum.Add(int64(v))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, ctx.Err())
	assert.Equal(t, int64(6), sum.Load())
}

func TestNew_Defaults(t *testing.T) {
	o := New(Options{Metrics: metrics.New()})
	assert.Equal(t, int64(1), o.Stats().Limit)
	assert.Equal(t, "default", o.scope)
}
