// Package orchestrator bounds concurrent fetch units and merges their results
// onto a single stream.
//
// A unit holds a concurrency slot only while its network call is running. A
// unit that fans out sibling fetches (one company's ancillary pages, say)
// therefore never blocks the siblings it waits for.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/marketdata-cli/internal/metrics"
	"github.com/sells-group/marketdata-cli/internal/resilience"
)

// Options configures an Orchestrator.
type Options struct {
	// Scope labels logs and metrics, e.g. "crawl" or "history".
	Scope string
	// Limit is the maximum number of units in flight. Values below 1 mean 1.
	Limit int
	// UnitTimeout, when positive, bounds each unit independently of the run.
	UnitTimeout time.Duration
	// Metrics receives unit outcomes. Nil uses metrics.M().
	Metrics *metrics.Set
}

// Orchestrator runs fetch units under a counting semaphore.
type Orchestrator struct {
	scope   string
	limit   int64
	timeout time.Duration
	sem     *semaphore.Weighted
	m       *metrics.Set
	log     *zap.Logger

	inFlight atomic.Int64
	peak     atomic.Int64
	ok       atomic.Int64
	failed   atomic.Int64
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Limit < 1 {
		opts.Limit = 1
	}
	if opts.Scope == "" {
		opts.Scope = "default"
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.M()
	}
	return &Orchestrator{
		scope:   opts.Scope,
		limit:   int64(opts.Limit),
		timeout: opts.UnitTimeout,
		sem:     semaphore.NewWeighted(int64(opts.Limit)),
		m:       m,
		log:     zap.L().With(zap.String("component", "orchestrator"), zap.String("scope", opts.Scope)),
	}
}

// Stats is a point-in-time view of an Orchestrator.
type Stats struct {
	Limit        int64
	InFlight     int64
	PeakInFlight int64
	Succeeded    int64
	Failed       int64
}

// Stats returns the current counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Limit:        o.limit,
		InFlight:     o.inFlight.Load(),
		PeakInFlight: o.peak.Load(),
		Succeeded:    o.ok.Load(),
		Failed:       o.failed.Load(),
	}
}

func (o *Orchestrator) enter() {
	n := o.inFlight.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	o.m.InFlight.WithLabelValues(o.scope).Set(float64(n))
	o.m.PeakInFlight.WithLabelValues(o.scope).Set(float64(o.peak.Load()))
}

func (o *Orchestrator) leave() {
	n := o.inFlight.Add(-1)
	o.m.InFlight.WithLabelValues(o.scope).Set(float64(n))
}

// Do runs fn holding one slot. The slot is released on every exit path. fn
// receives a context bounded by the unit timeout when one is configured.
// Errors are returned unclassified; most callers want Fetch.
func (o *Orchestrator) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "orchestrator: run cancelled")
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return eris.Wrap(err, "orchestrator: acquire slot")
	}
	o.enter()
	defer func() {
		o.leave()
		o.sem.Release(1)
	}()

	unitCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return fn(unitCtx)
}

// Fetch runs fn as one unit of work. Any failure other than cancellation of
// ctx itself is logged and resolved to (zero, false). A fatal failure is also
// resolved to (zero, false); callers detect it through ctx.Err().
func Fetch[R any](ctx context.Context, o *Orchestrator, label string, fn func(ctx context.Context) (R, error)) (R, bool) {
	var out R
	err := o.Do(ctx, func(unitCtx context.Context) error {
		r, err := fn(unitCtx)
		if err != nil {
			return err
		}
		out = r
		return nil
	})

	switch resilience.Classify(ctx, err) {
	case resilience.ClassNone:
		o.ok.Add(1)
		o.m.Units.WithLabelValues(o.scope, "ok").Inc()
		return out, true
	case resilience.ClassFatal:
		o.m.Units.WithLabelValues(o.scope, "cancelled").Inc()
		var zero R
		return zero, false
	default:
		o.failed.Add(1)
		kind := resilience.Kind(err)
		o.m.Units.WithLabelValues(o.scope, "failed").Inc()
		o.m.UnitFailures.WithLabelValues(o.scope, kind).Inc()
		o.log.Warn("fetch unit failed",
			zap.String("unit", label),
			zap.String("kind", kind),
			zap.Error(err),
		)
		var zero R
		return zero, false
	}
}
