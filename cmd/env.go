package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/marketdata-cli/internal/b3"
	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/crawler"
	"github.com/sells-group/marketdata-cli/internal/engine"
	"github.com/sells-group/marketdata-cli/internal/fetcher"
	"github.com/sells-group/marketdata-cli/internal/history"
	"github.com/sells-group/marketdata-cli/internal/persist"
	"github.com/sells-group/marketdata-cli/internal/store"
)

// jobEnv holds the store, transport and job registry used by the crawl,
// history, sync and schedule commands.
type jobEnv struct {
	Store    store.Store
	Fetcher  fetcher.Fetcher
	Registry *engine.Registry
	Engine   *engine.Engine
}

// Close releases resources held by the environment.
func (e *jobEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initJobs validates cfg for mode, opens and migrates the store and builds
// the registry. Callers should defer env.Close().
func initJobs(ctx context.Context, mode string) (*jobEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	f := initFetcher(cfg.Sources)
	reg, err := buildRegistry(cfg, st, f)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &jobEnv{
		Store:    st,
		Fetcher:  f,
		Registry: reg,
		Engine:   engine.New(st, reg),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "marketdata.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initFetcher routes http(s) URLs to the rate-limited HTTP fetcher and
// ftp:// URLs to the FTP fetcher.
func initFetcher(src config.SourcesConfig) fetcher.Fetcher {
	timeout := time.Duration(src.TimeoutSecs) * time.Second
	httpF := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:        src.UserAgent,
		Timeout:          timeout,
		RateLimiters:     rateLimiters(src),
		AdaptiveLimiters: adaptiveLimiters(src),
	})
	ftpF := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout:  timeout,
		User:     src.FTPUser,
		Password: src.FTPPassword,
	})
	return fetcher.NewMulti(httpF, ftpF)
}

func rateLimiters(src config.SourcesConfig) map[string]*rate.Limiter {
	limiters := fetcher.DefaultRateLimiters()
	if src.RatePerSec > 0 {
		limiters[fetcher.HostListedCompanies] = rate.NewLimiter(rate.Limit(src.RatePerSec), burst(src.RatePerSec))
	}
	if src.HistoryRatePerSec > 0 {
		limiters[fetcher.HostHistorical] = rate.NewLimiter(rate.Limit(src.HistoryRatePerSec), burst(src.HistoryRatePerSec))
	}
	return limiters
}

// adaptiveLimiters starts the listed-companies limiter at the configured
// rate; it backs off on 429s. A rate of 0 turns adaptive limiting off, so the
// result is empty rather than nil, which would select the fetcher defaults.
func adaptiveLimiters(src config.SourcesConfig) map[string]*fetcher.AdaptiveLimiter {
	if src.RatePerSec <= 0 {
		return map[string]*fetcher.AdaptiveLimiter{}
	}
	return map[string]*fetcher.AdaptiveLimiter{
		fetcher.HostListedCompanies: fetcher.NewAdaptiveLimiter(rate.Limit(src.RatePerSec), burst(src.RatePerSec)),
	}
}

func burst(perSec float64) int {
	if perSec < 1 {
		return 1
	}
	return int(perSec)
}

func newB3Client(f fetcher.Fetcher, c *config.Config) *b3.Client {
	return b3.NewClient(f, b3.Options{
		URLs: b3.URLs{
			ListCompanies:     c.Sources.ListCompaniesURL,
			CompanyDetails:    c.Sources.CompanyDetailsURL,
			SplitSubscription: c.Sources.SplitSubscriptionURL,
			Dividends:         c.Sources.DividendsURL,
		},
		Language:         c.Crawl.Language,
		PageSize:         c.Crawl.PageSize,
		DividendPageSize: c.Crawl.DividendPageSize,
		MinBodyBytes:     c.Sources.MinBodyBytes,
	})
}

func crawlOptions(c config.CrawlConfig) (crawler.Options, error) {
	policy, err := persist.ParsePolicy(c.UpdatePolicy)
	if err != nil {
		return crawler.Options{}, err
	}
	mode, err := crawler.ParseAncillaryMode(c.Ancillary.Mode)
	if err != nil {
		return crawler.Options{}, err
	}
	return crawler.Options{
		Parallelism: c.MaxParallelism,
		UnitTimeout: time.Duration(c.UnitTimeoutSecs) * time.Second,
		Companies:   c.Companies,
		Policy:      policy,
		Ancillary: crawler.AncillaryPolicy{
			Mode:       mode,
			Tickers:    c.Ancillary.Tickers,
			StaleAfter: time.Duration(c.Ancillary.StaleAfterDays) * 24 * time.Hour,
			MaxFetches: c.Ancillary.MaxFetches,
		},
	}, nil
}

func historyOptions(c config.HistoryConfig, baseURL string) (history.Options, error) {
	kind, err := history.ParseBucketKind(c.Bucket)
	if err != nil {
		return history.Options{}, err
	}
	policy, err := persist.ParsePolicy(c.UpdatePolicy)
	if err != nil {
		return history.Options{}, err
	}
	from, err := parseDate("history.start", c.Start)
	if err != nil {
		return history.Options{}, err
	}
	to, err := parseDate("history.end", c.End)
	if err != nil {
		return history.Options{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return history.Options{}, eris.Errorf("history: end %s is before start %s", c.End, c.Start)
	}
	return history.Options{
		Kind:         kind,
		From:         from,
		To:           to,
		SkipWeekends: c.SkipWeekends,
		Parallelism:  c.MaxParallelism,
		UnitTimeout:  time.Duration(c.UnitTimeoutSecs) * time.Second,
		Policy:       policy,
		BaseURL:      baseURL,
		TempDir:      c.TempDir,
	}, nil
}

func parseDate(key, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "%s must be YYYY-MM-DD", key)
	}
	return t, nil
}

// buildRegistry registers the jobs in the order sync runs them: reference
// data first so the price pipeline sees new tickers.
func buildRegistry(c *config.Config, st store.Store, f fetcher.Fetcher) (*engine.Registry, error) {
	copts, err := crawlOptions(c.Crawl)
	if err != nil {
		return nil, err
	}
	hopts, err := historyOptions(c.History, c.Sources.HistoryBaseURL)
	if err != nil {
		return nil, err
	}
	client := newB3Client(f, c)

	crawlJob := engine.NewJob(crawler.JobName, func(ctx context.Context) (*engine.Result, error) {
		res, err := crawler.New(client, st, copts).Run(ctx)
		if err != nil {
			return nil, err
		}
		return &engine.Result{Rows: res.RowsChanged, Metadata: engine.Metadata(res)}, nil
	})
	historyJob := engine.NewJob(history.JobName, func(ctx context.Context) (*engine.Result, error) {
		res, err := history.New(f, st, hopts).Run(ctx)
		if err != nil {
			return nil, err
		}
		return &engine.Result{Rows: res.RowsChanged, Metadata: engine.Metadata(res)}, nil
	})

	return engine.NewRegistry(crawlJob, historyJob), nil
}
