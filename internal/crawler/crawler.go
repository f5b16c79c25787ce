// Package crawler refreshes listed-company reference data from B3: companies,
// their industry segments and tickers, and optionally their corporate events.
//
// A run lists companies page by page, fans every listed company out as a
// detail unit, gates invalid details before any ancillary call, joins each
// company's ancillary fetches into one bundle and normalizes bundles in a
// single consumer that commits once at the end.
package crawler

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/b3"
	"github.com/sells-group/marketdata-cli/internal/orchestrator"
	"github.com/sells-group/marketdata-cli/internal/persist"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// JobName labels crawl runs in the run log and in metrics.
const JobName = "crawl"

// Options configures a Crawler.
type Options struct {
	// Parallelism bounds concurrent B3 requests. Defaults to 10.
	Parallelism int
	// UnitTimeout bounds each request on its own. Zero means no bound.
	UnitTimeout time.Duration
	// Companies, when set, replaces listing with these CVM codes.
	Companies []int
	// Policy applies to companies and events already stored.
	Policy persist.Policy
	// Ancillary decides which companies get split and dividend fetches.
	Ancillary AncillaryPolicy
	// Now is the clock used by the stale policy. Defaults to time.Now.
	Now func() time.Time
}

// Result summarizes a crawl run.
type Result struct {
	Pages       int   `json:"pages"`
	Listed      int   `json:"listed"`
	Details     int   `json:"details"`
	Invalid     int   `json:"invalid"`
	Ancillary   int   `json:"ancillary"`
	NoTickers   int   `json:"no_tickers"`
	Companies   int   `json:"companies"`
	Tickers     int   `json:"tickers"`
	Events      int   `json:"events"`
	RowsChanged int64 `json:"rows_changed"`
}

// Crawler runs reference-data crawls.
type Crawler struct {
	client *b3.Client
	store  store.Store
	opts   Options
	log    *zap.Logger
}

// New creates a Crawler.
func New(client *b3.Client, st store.Store, opts Options) *Crawler {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 10
	}
	if opts.Policy == "" {
		opts.Policy = persist.PolicySkip
	}
	if opts.Ancillary.Mode == "" {
		opts.Ancillary.Mode = AncillaryAlways
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Crawler{
		client: client,
		store:  st,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "crawler")),
	}
}

// counters are updated by producers running concurrently.
type counters struct {
	pages     atomic.Int64
	listed    atomic.Int64
	details   atomic.Int64
	invalid   atomic.Int64
	ancillary atomic.Int64
}

// Run executes one crawl and commits its changes in a single transaction.
// Failed requests only lose the affected unit. A store error or cancellation
// of ctx fails the run without committing anything.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	ref, err := c.store.LoadReference(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "crawler: load reference")
	}
	c.log.Info("reference loaded",
		zap.Int("companies", len(ref.Companies)),
		zap.Int("industries", len(ref.Industries)),
		zap.Int("tickers", len(ref.Tickers)),
	)

	orch := orchestrator.New(orchestrator.Options{
		Scope:       JobName,
		Limit:       c.opts.Parallelism,
		UnitTimeout: c.opts.UnitTimeout,
	})
	gate := newGate(c.opts.Ancillary, ref, c.opts.Now())
	var stats counters

	m := orchestrator.NewMerger[*bundle]()
	_, listDone := m.Add()
	go func() {
		defer listDone()
		c.list(ctx, orch, m, gate, &stats)
	}()
	m.Close()

	n := newNormalizer(ref, c.opts.Policy)
	if _, err := persist.Drain(ctx, m.Out(), n.apply); err != nil {
		return nil, eris.Wrap(err, "crawler: normalize")
	}
	cs := n.changeSet()

	rows, err := persist.Commit(ctx, c.store, JobName, cs)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Pages:       int(stats.pages.Load()),
		Listed:      int(stats.listed.Load()),
		Details:     int(stats.details.Load()),
		Invalid:     int(stats.invalid.Load()),
		Ancillary:   int(stats.ancillary.Load()),
		NoTickers:   n.noTickers,
		Companies:   len(cs.Companies) + len(cs.CompanyUpdates),
		Tickers:     len(cs.Tickers),
		Events:      len(cs.Splits) + len(cs.SplitUpdates) + len(cs.Subscriptions) + len(cs.SubscriptionUpdates) + len(cs.Dividends) + len(cs.DividendUpdates),
		RowsChanged: rows,
	}
	us := orch.Stats()
	c.log.Info("crawl complete",
		zap.Int("listed", res.Listed),
		zap.Int("details", res.Details),
		zap.Int("invalid", res.Invalid),
		zap.Int("ancillary", res.Ancillary),
		zap.Int("no_tickers", res.NoTickers),
		zap.Int64("rows", rows),
		zap.Int64("failed_units", us.Failed),
		zap.Int64("peak_in_flight", us.PeakInFlight),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// list starts one detail producer per company. With an explicit company list
// no listing request is made; otherwise pages are fetched in order and each
// page's companies are started before the next page is requested.
func (c *Crawler) list(ctx context.Context, orch *orchestrator.Orchestrator, m *orchestrator.Merger[*bundle], gate *gate, stats *counters) {
	start := func(code int) {
		stats.listed.Add(1)
		m.Go(func(emit orchestrator.Emit[*bundle]) {
			if b := c.company(ctx, orch, code, gate, stats); b != nil {
				emit(b)
			}
		})
	}

	if len(c.opts.Companies) > 0 {
		for _, code := range c.opts.Companies {
			start(code)
		}
		return
	}

	total := 1
	for page := 1; page <= total; page++ {
		if ctx.Err() != nil {
			return
		}
		resp, ok := orchestrator.Fetch(ctx, orch, "list page "+strconv.Itoa(page),
			func(ctx context.Context) (*b3.CompaniesResponse, error) {
				return c.client.Companies(ctx, page)
			})
		if !ok {
			// Without the page there is no reliable page count to continue with.
			c.log.Warn("company listing stopped", zap.Int("page", page), zap.Int("total_pages", total))
			return
		}
		stats.pages.Add(1)
		if page == 1 && resp.Page.TotalPages > 1 {
			total = resp.Page.TotalPages
		}
		for _, e := range resp.Results {
			if e.CodeCVM == 0 {
				continue
			}
			start(e.CodeCVM)
		}
	}
}

// company fetches one detail and, when the gate allows it, its ancillary
// data. It returns nil for a failed or invalid detail.
func (c *Crawler) company(ctx context.Context, orch *orchestrator.Orchestrator, code int, gate *gate, stats *counters) *bundle {
	detail, ok := orchestrator.Fetch(ctx, orch, "detail "+strconv.Itoa(code),
		func(ctx context.Context) (*b3.CompanyResponse, error) {
			return c.client.Company(ctx, code)
		})
	if !ok {
		return nil
	}
	stats.details.Add(1)
	if !detail.Valid() {
		stats.invalid.Add(1)
		c.log.Debug("dropping invalid company detail", zap.Int("cvm_code", code))
		return nil
	}

	b := &bundle{detail: detail}
	if gate.allow(detail) {
		stats.ancillary.Add(1)
		c.ancillary(ctx, orch, b)
	}
	return b
}
