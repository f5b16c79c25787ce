package persist

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/metrics"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// Drain consumes in until it is closed, calling apply for every value. It
// returns the number of values applied. When apply fails or ctx is cancelled
// Drain returns early and keeps discarding the rest of in on a background
// goroutine so blocked producers can finish.
func Drain[T any](ctx context.Context, in <-chan T, apply func(T) error) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			go discard(in)
			return n, eris.Wrap(ctx.Err(), "persist: drain cancelled")
		case v, ok := <-in:
			if !ok {
				return n, nil
			}
			if err := apply(v); err != nil {
				go discard(in)
				return n, eris.Wrap(err, "persist: apply record")
			}
			n++
		}
	}
}

func discard[T any](in <-chan T) {
	for range in {
	}
}

// Commit writes cs as the single commit of a job run and records the number
// of rows changed. An empty change set is not sent to the store.
func Commit(ctx context.Context, s store.Store, job string, cs *store.ChangeSet) (int64, error) {
	log := zap.L().With(zap.String("component", "persist"), zap.String("job", job))
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "persist: commit cancelled")
	}
	if cs.Len() == 0 {
		log.Info("nothing to commit")
		return 0, nil
	}

	start := time.Now()
	n, err := s.Commit(ctx, cs)
	if err != nil {
		return 0, eris.Wrapf(err, "persist: commit %s", job)
	}
	metrics.M().RowsCommitted.WithLabelValues(job).Add(float64(n))
	log.Info("committed",
		zap.Int64("rows", n),
		zap.Int("prices", len(cs.Prices)+len(cs.PriceUpdates)),
		zap.Int("companies", len(cs.Companies)+len(cs.CompanyUpdates)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return n, nil
}
