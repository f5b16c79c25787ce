package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/metrics"
	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// Engine runs registered jobs one after another.
type Engine struct {
	store store.Store
	reg   *Registry
}

// RunOpts selects jobs.
type RunOpts struct {
	Jobs []string
	// StopOnError skips the remaining jobs after a failure.
	StopOnError bool
}

// Summary counts job outcomes of one engine run.
type Summary struct {
	Succeeded int
	Failed    int
	Rows      int64
}

// New creates an Engine.
func New(st store.Store, reg *Registry) *Engine {
	return &Engine{store: st, reg: reg}
}

// Run executes the selected jobs in order, recording each in the run log.
// A failed job does not stop the others unless StopOnError is set; the
// returned error reports how many failed.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (Summary, error) {
	log := zap.L().With(zap.String("component", "engine"))
	var sum Summary

	jobs, err := e.reg.Select(opts.Jobs)
	if err != nil {
		return sum, err
	}
	if len(jobs) == 0 {
		log.Info("no jobs selected")
		return sum, nil
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "engine: cancelled")
		}

		rows, err := e.RunJob(ctx, job)
		if err != nil {
			sum.Failed++
			if opts.StopOnError {
				break
			}
			continue
		}
		sum.Succeeded++
		sum.Rows += rows
	}

	log.Info("engine run complete",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int64("rows", sum.Rows),
	)
	if sum.Failed > 0 {
		return sum, eris.Errorf("engine: %d job(s) failed", sum.Failed)
	}
	return sum, nil
}

// RunJob runs a single job with run-log bookkeeping and returns the rows it
// changed.
func (e *Engine) RunJob(ctx context.Context, job Job) (int64, error) {
	name := job.Name()
	log := zap.L().With(zap.String("component", "engine"), zap.String("job", name))

	runID, err := e.store.StartRun(ctx, name)
	if err != nil {
		return 0, eris.Wrapf(err, "engine: start run log for %s", name)
	}
	log.Info("starting job", zap.String("run_id", runID))

	start := time.Now()
	res, err := job.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		metrics.M().RunDuration.WithLabelValues(name, string(model.RunStatusFailed)).Observe(elapsed.Seconds())
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		// The run context may be the reason for the failure; record it anyway.
		if logErr := e.store.FailRun(context.WithoutCancel(ctx), runID, err.Error()); logErr != nil {
			log.Error("failed to record job failure", zap.Error(logErr))
		}
		return 0, err
	}
	if res == nil {
		res = &Result{}
	}

	metrics.M().RunDuration.WithLabelValues(name, string(model.RunStatusComplete)).Observe(elapsed.Seconds())
	if err := e.store.CompleteRun(ctx, runID, res.Rows, res.Metadata); err != nil {
		log.Error("failed to record job completion", zap.Error(err))
	}
	log.Info("job complete", zap.Int64("rows", res.Rows), zap.Duration("elapsed", elapsed))
	return res.Rows, nil
}
