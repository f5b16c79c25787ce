package crawler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketdata-cli/internal/b3"
	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/orchestrator"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// AncillaryMode selects which companies get corporate-event fetches.
type AncillaryMode string

const (
	AncillaryAlways    AncillaryMode = "always"
	AncillaryNever     AncillaryMode = "never"
	AncillaryAllowlist AncillaryMode = "allowlist"
	AncillaryStale     AncillaryMode = "stale"
)

// ParseAncillaryMode validates a configured mode. Empty means always.
func ParseAncillaryMode(s string) (AncillaryMode, error) {
	switch m := AncillaryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AncillaryAlways, nil
	case AncillaryAlways, AncillaryNever, AncillaryAllowlist, AncillaryStale:
		return m, nil
	default:
		return "", eris.Errorf("crawler: unknown ancillary mode %q", s)
	}
}

// AncillaryPolicy is the cost-control policy for split and dividend fetches.
type AncillaryPolicy struct {
	Mode AncillaryMode
	// Tickers is the allowlist; a company qualifies when any of its symbols
	// is listed.
	Tickers []string
	// StaleAfter is how old a company's newest stored event may be before the
	// stale mode refetches it. Companies without stored events always qualify.
	StaleAfter time.Duration
	// MaxFetches caps the companies fetched per run. Zero is unlimited.
	MaxFetches int
}

// gate applies an AncillaryPolicy. allow is called from concurrent producers.
type gate struct {
	policy  AncillaryPolicy
	allowed map[string]bool
	latest  map[string]time.Time
	cutoff  time.Time
	used    atomic.Int64
}

func newGate(p AncillaryPolicy, ref *store.Reference, now time.Time) *gate {
	g := &gate{policy: p, allowed: make(map[string]bool, len(p.Tickers))}
	for _, t := range p.Tickers {
		g.allowed[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	if ref != nil {
		g.latest = ref.LatestEvent
	}
	if p.StaleAfter > 0 {
		g.cutoff = now.Add(-p.StaleAfter)
	}
	return g
}

func (g *gate) allow(c *b3.CompanyResponse) bool {
	if !g.qualifies(c) {
		return false
	}
	if g.policy.MaxFetches <= 0 {
		return true
	}
	for {
		n := g.used.Load()
		if n >= int64(g.policy.MaxFetches) {
			return false
		}
		if g.used.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *gate) qualifies(c *b3.CompanyResponse) bool {
	switch g.policy.Mode {
	case AncillaryNever:
		return false
	case AncillaryAllowlist:
		for _, oc := range c.OtherCodes {
			if g.allowed[strings.ToUpper(strings.TrimSpace(oc.Code))] {
				return true
			}
		}
		return false
	case AncillaryStale:
		last, ok := g.latest[c.CNPJ]
		return !ok || last.Before(g.cutoff)
	default:
		return true
	}
}

// bundle is one company with everything fetched for it. It is emitted only
// after all of the company's fetches have finished.
type bundle struct {
	detail    *b3.CompanyResponse
	split     *b3.SplitSubscriptionResponse
	dividends map[model.EventKey]b3.DividendResult
}

// ancillary fetches the split/subscription payload and every dividend page of
// a company concurrently and waits for all of them. Each request is its own
// orchestrator unit, so the wait never holds a slot.
func (c *Crawler) ancillary(ctx context.Context, orch *orchestrator.Orchestrator, b *bundle) {
	d := b.detail
	tickers := codeTickers(d)
	var g errgroup.Group

	if d.IssuingCompany != "" {
		g.Go(func() error {
			resp, ok := orchestrator.Fetch(ctx, orch, "split "+d.IssuingCompany,
				func(ctx context.Context) (*b3.SplitSubscriptionResponse, error) {
					return c.client.SplitSubscription(ctx, d.IssuingCompany)
				})
			if ok {
				b.split = resp
			}
			return nil
		})
	}

	var divs sync.Map
	if d.TradingName != "" {
		g.Go(func() error {
			first, ok := c.dividendPage(ctx, orch, d.TradingName, 1)
			if !ok {
				return nil
			}
			collectDividends(&divs, tickers, first.Results)

			var pages errgroup.Group
			for p := 2; p <= first.Page.TotalPages; p++ {
				pages.Go(func() error {
					if resp, ok := c.dividendPage(ctx, orch, d.TradingName, p); ok {
						collectDividends(&divs, tickers, resp.Results)
					}
					return nil
				})
			}
			return pages.Wait()
		})
	}

	_ = g.Wait()

	b.dividends = make(map[model.EventKey]b3.DividendResult)
	divs.Range(func(k, v any) bool {
		b.dividends[k.(model.EventKey)] = v.(b3.DividendResult)
		return true
	})
}

func (c *Crawler) dividendPage(ctx context.Context, orch *orchestrator.Orchestrator, tradingName string, page int) (*b3.DividendsResponse, bool) {
	return orchestrator.Fetch(ctx, orch, "dividends "+tradingName+" page "+strconv.Itoa(page),
		func(ctx context.Context) (*b3.DividendsResponse, error) {
			return c.client.Dividends(ctx, tradingName, page)
		})
}

// collectDividends keys each result by (symbol, approval date). Results whose
// share class matches none of the company's symbols are dropped. Pages may
// repeat an entry; the first one stored wins.
func collectDividends(into *sync.Map, tickers []*model.Ticker, results []b3.DividendResult) {
	for _, r := range results {
		t := model.TickerForStockType(tickers, r.TypeStock)
		if t == nil || r.DateApproval.IsZero() {
			continue
		}
		into.LoadOrStore(model.EventKey{Symbol: t.Symbol, Day: model.DayOf(r.DateApproval.Time)}, r)
	}
}

// codeTickers turns a detail's otherCodes into unsaved tickers: both code and
// ISIN must be present and each code counts once.
func codeTickers(d *b3.CompanyResponse) []*model.Ticker {
	out := make([]*model.Ticker, 0, len(d.OtherCodes))
	seen := make(map[string]bool, len(d.OtherCodes))
	for _, oc := range d.OtherCodes {
		code := strings.ToUpper(strings.TrimSpace(oc.Code))
		isin := strings.TrimSpace(oc.ISIN)
		if code == "" || isin == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, &model.Ticker{Symbol: code, ISIN: isin})
	}
	return out
}
