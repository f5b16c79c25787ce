package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/cotahist"
	"github.com/sells-group/marketdata-cli/internal/fetcher"
	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/orchestrator"
	"github.com/sells-group/marketdata-cli/internal/persist"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// JobName labels history runs in the run log and in metrics.
const JobName = "history"

// DefaultParallelism bounds concurrent downloads when Options leaves it unset.
const DefaultParallelism = 10

// batchSize is how many records a bucket hands to the consumer at once.
const batchSize = 4096

// Options configures a Pipeline.
type Options struct {
	Kind BucketKind
	// From defaults to DefaultStart. To defaults to today.
	From time.Time
	To   time.Time
	// SkipWeekends drops Saturday and Sunday day buckets.
	SkipWeekends bool
	// Parallelism bounds concurrent downloads. Defaults to 10.
	Parallelism int
	UnitTimeout time.Duration
	Policy      persist.Policy
	BaseURL     string
	// TempDir holds downloaded archives while they are read. Empty uses the
	// system temp dir.
	TempDir string
	Now     func() time.Time
}

// Result summarizes a history run.
type Result struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Buckets     int       `json:"buckets"`
	Downloaded  int       `json:"downloaded"`
	Lines       int       `json:"lines"`
	Records     int       `json:"records"`
	Unknown     int       `json:"unknown_symbols"`
	Malformed   int       `json:"malformed"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	Skipped     int       `json:"skipped"`
	OutOfRange  int       `json:"out_of_range"`
	RowsChanged int64     `json:"rows_changed"`
}

// Pipeline downloads archives and persists their quotes.
type Pipeline struct {
	f     fetcher.Fetcher
	store store.Store
	opts  Options
	log   *zap.Logger
}

// New creates a Pipeline.
func New(f fetcher.Fetcher, st store.Store, opts Options) *Pipeline {
	if opts.Kind == "" {
		opts.Kind = Day
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Policy == "" {
		opts.Policy = persist.PolicySkip
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		f:     f,
		store: st,
		opts:  opts,
		log:   zap.L().With(zap.String("component", "history.pipeline")),
	}
}

type fileStats struct {
	downloaded atomic.Int64
	lines      atomic.Int64
	records    atomic.Int64
	unknown    atomic.Int64
	malformed  atomic.Int64
}

func (s *fileStats) add(st cotahist.Stats) {
	s.lines.Add(int64(st.Lines))
	s.records.Add(int64(st.Records))
	s.unknown.Add(int64(st.Unknown))
	s.malformed.Add(int64(st.Malformed))
}

// Run loads every bucket in the configured range and commits the new quotes
// in one transaction. A bucket that fails to download or decode is logged
// and skipped.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	from, to, err := p.span(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{From: from, To: to}
	buckets := Buckets(p.opts.Kind, from, to, p.opts.SkipWeekends)
	res.Buckets = len(buckets)
	if len(buckets) == 0 {
		p.log.Info("no buckets to load", zap.Time("from", from), zap.Time("to", to))
		return res, nil
	}

	tickers, err := p.store.LoadTickers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "history: load tickers")
	}
	lo, hi := WidenRange(p.opts.Kind, from, to)
	keys, err := p.store.LoadPriceKeys(ctx, lo, hi)
	if err != nil {
		return nil, eris.Wrap(err, "history: load price keys")
	}
	p.log.Info("indexes loaded",
		zap.Int("tickers", len(tickers)),
		zap.Int("stored_prices", len(keys)),
		zap.Time("from", lo),
		zap.Time("to", hi),
		zap.Int("buckets", len(buckets)),
	)

	symbols := cotahist.SymbolIndex(tickers)
	orch := orchestrator.New(orchestrator.Options{
		Scope:       JobName,
		Limit:       p.opts.Parallelism,
		UnitTimeout: p.opts.UnitTimeout,
	})
	var stats fileStats

	m := orchestrator.NewMerger[[]cotahist.Record]()
	for _, b := range buckets {
		m.Go(func(emit orchestrator.Emit[[]cotahist.Record]) {
			p.bucket(ctx, orch, symbols, b, emit, &stats)
		})
	}
	m.Close()

	index := persist.NewIndex("price", p.opts.Policy, keys)
	var cs store.ChangeSet
	if _, err := persist.Drain(ctx, m.Out(), func(batch []cotahist.Record) error {
		for _, r := range batch {
			// The key index only covers [lo, hi]; a quote outside it could
			// collide with a stored row at commit.
			if r.Date.Before(lo) || r.Date.After(hi) {
				res.OutOfRange++
				continue
			}
			pr := model.Price{
				TickerID:   r.TickerID,
				Date:       r.Date,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Average:    r.Average,
				Close:      r.Close,
				Strike:     r.Strike,
				Expiration: r.Expiration,
			}
			switch index.Decide(pr.Key(), struct{}{}) {
			case persist.Insert:
				cs.Prices = append(cs.Prices, pr)
			case persist.Update:
				cs.PriceUpdates = append(cs.PriceUpdates, pr)
			default:
				res.Skipped++
			}
		}
		return nil
	}); err != nil {
		return nil, eris.Wrap(err, "history: consume records")
	}

	rows, err := persist.Commit(ctx, p.store, JobName, &cs)
	if err != nil {
		return nil, err
	}

	res.Downloaded = int(stats.downloaded.Load())
	res.Lines = int(stats.lines.Load())
	res.Records = int(stats.records.Load())
	res.Unknown = int(stats.unknown.Load())
	res.Malformed = int(stats.malformed.Load())
	res.Inserted = len(cs.Prices)
	res.Updated = len(cs.PriceUpdates)
	res.RowsChanged = rows

	p.log.Info("history complete",
		zap.Int("buckets", res.Buckets),
		zap.Int("downloaded", res.Downloaded),
		zap.Int("lines", res.Lines),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("out_of_range", res.OutOfRange),
		zap.Int64("peak_in_flight", orch.Stats().PeakInFlight),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// span resolves the requested date range against the store and the clock.
func (p *Pipeline) span(ctx context.Context) (time.Time, time.Time, error) {
	from, to := p.opts.From, p.opts.To
	if from.IsZero() {
		latest, ok, err := p.store.LatestPriceDate(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrap(err, "history: latest price date")
		}
		from = DefaultStart(latest, ok)
	}
	if to.IsZero() {
		to = p.opts.Now()
	}
	return dateOf(from), dateOf(to), nil
}

// bucket downloads one archive under the orchestrator, then streams its
// entry through the decoder outside the slot.
func (p *Pipeline) bucket(ctx context.Context, orch *orchestrator.Orchestrator, symbols cotahist.Index,
	date time.Time, emit orchestrator.Emit[[]cotahist.Record], stats *fileStats) {
	url := BucketURL(p.opts.BaseURL, p.opts.Kind, date)
	log := p.log.With(zap.String("bucket", date.Format("2006-01-02")))

	path, ok := orchestrator.Fetch(ctx, orch, url, func(ctx context.Context) (string, error) {
		return p.download(ctx, url)
	})
	if !ok {
		return
	}
	defer os.Remove(path) //nolint:errcheck
	stats.downloaded.Add(1)

	rc, entry, err := fetcher.OpenZIPSingle(path)
	if err != nil {
		log.Warn("unreadable archive", zap.String("url", url), zap.Error(err))
		return
	}
	defer rc.Close() //nolint:errcheck
	if p.opts.Kind == Day {
		checkEntryDate(log, entry, date)
	}

	batch := make([]cotahist.Record, 0, batchSize)
	st, err := cotahist.Each(ctx, rc, symbols, func(r cotahist.Record) error {
		batch = append(batch, r)
		if len(batch) == batchSize {
			emit(batch)
			batch = make([]cotahist.Record, 0, batchSize)
		}
		return nil
	})
	if len(batch) > 0 {
		emit(batch)
	}
	stats.add(st)
	if err != nil {
		log.Warn("archive read stopped", zap.String("entry", entry), zap.Error(err))
		return
	}
	log.Debug("bucket processed",
		zap.String("entry", entry),
		zap.Int("lines", st.Lines),
		zap.Int("records", st.Records),
		zap.Int("unknown", st.Unknown),
	)
}

func (p *Pipeline) download(ctx context.Context, url string) (string, error) {
	tmp, err := os.CreateTemp(p.opts.TempDir, "cotahist-*.zip")
	if err != nil {
		return "", eris.Wrap(err, "history: create temp file")
	}
	path := tmp.Name()
	_ = tmp.Close()

	if _, err := p.f.DownloadToFile(ctx, url, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// checkEntryDate warns when a daily archive holds a file stamped with another
// day (COTAHIST_D02012024.TXT belongs to 2024-01-02).
func checkEntryDate(log *zap.Logger, entry string, want time.Time) {
	name := strings.TrimSuffix(strings.ToUpper(filepath.Base(entry)), ".TXT")
	i := strings.LastIndex(name, "_D")
	if i < 0 || len(name)-(i+2) != 8 {
		return
	}
	got, ok := cotahist.ParseDayStamp([]byte(name[i+2:]))
	if ok && !got.Equal(want) {
		log.Warn("daily archive holds another day", zap.String("entry", entry), zap.Time("stamped", got))
	}
}
