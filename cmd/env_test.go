package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/crawler"
	"github.com/sells-group/marketdata-cli/internal/fetcher"
	"github.com/sells-group/marketdata-cli/internal/history"
	"github.com/sells-group/marketdata-cli/internal/persist"
	"github.com/sells-group/marketdata-cli/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "market.db")},
		Sources: config.SourcesConfig{
			HistoryBaseURL: history.DefaultBaseURL,
			TimeoutSecs:    5,
			MinBodyBytes:   10,
		},
		Crawl: config.CrawlConfig{
			MaxParallelism:  10,
			UnitTimeoutSecs: 30,
			UpdatePolicy:    "skip",
			Ancillary:       config.AncillaryConfig{Mode: "always", StaleAfterDays: 30},
		},
		History: config.HistoryConfig{
			MaxParallelism: 4,
			Bucket:         "day",
			UpdatePolicy:   "skip",
			SkipWeekends:   true,
		},
		Schedule: config.ScheduleConfig{Crawl: "0 20 * * 1-5", History: "30 21 * * 1-5", Timezone: "UTC"},
		Server:   config.ServerConfig{Port: 8080},
	}
}

// withConfig installs c as the command config for the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestCrawlOptions(t *testing.T) {
	c := testConfig(t).Crawl
	c.Companies = []int{9512}
	c.UpdatePolicy = "OVERWRITE"
	c.Ancillary = config.AncillaryConfig{Mode: "stale", Tickers: []string{"PETR"}, StaleAfterDays: 7, MaxFetches: 50}

	opts, err := crawlOptions(c)
	require.NoError(t, err)
	assert.Equal(t, 10, opts.Parallelism)
	assert.Equal(t, 30*time.Second, opts.UnitTimeout)
	assert.Equal(t, []int{9512}, opts.Companies)
	assert.Equal(t, persist.PolicyOverwrite, opts.Policy)
	assert.Equal(t, crawler.AncillaryStale, opts.Ancillary.Mode)
	assert.Equal(t, 7*24*time.Hour, opts.Ancillary.StaleAfter)
	assert.Equal(t, 50, opts.Ancillary.MaxFetches)
	assert.Equal(t, []string{"PETR"}, opts.Ancillary.Tickers)
}

func TestCrawlOptions_Invalid(t *testing.T) {
	c := testConfig(t).Crawl
	c.UpdatePolicy = "merge"
	_, err := crawlOptions(c)
	assert.Error(t, err)

	c = testConfig(t).Crawl
	c.Ancillary.Mode = "sometimes"
	_, err = crawlOptions(c)
	assert.Error(t, err)
}

func TestHistoryOptions(t *testing.T) {
	c := testConfig(t).History
	c.Bucket = "month"
	c.Start = "2023-01-01"
	c.End = "2023-06-30"

	opts, err := historyOptions(c, "http://localhost/COTAHIST_")
	require.NoError(t, err)
	assert.Equal(t, history.Month, opts.Kind)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), opts.From)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), opts.To)
	assert.True(t, opts.SkipWeekends)
	assert.Equal(t, 4, opts.Parallelism)
	assert.Equal(t, persist.PolicySkip, opts.Policy)
	assert.Equal(t, "http://localhost/COTAHIST_", opts.BaseURL)
}

func TestHistoryOptions_DefaultsResume(t *testing.T) {
	opts, err := historyOptions(testConfig(t).History, history.DefaultBaseURL)
	require.NoError(t, err)
	assert.True(t, opts.From.IsZero())
	assert.True(t, opts.To.IsZero())
}

func TestHistoryOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.HistoryConfig)
	}{
		{"bucket", func(c *config.HistoryConfig) { c.Bucket = "week" }},
		{"policy", func(c *config.HistoryConfig) { c.UpdatePolicy = "merge" }},
		{"start", func(c *config.HistoryConfig) { c.Start = "01/02/2024" }},
		{"end before start", func(c *config.HistoryConfig) {
			c.Start = "2024-02-01"
			c.End = "2024-01-01"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t).History
			tt.mutate(&c)
			_, err := historyOptions(c, history.DefaultBaseURL)
			assert.Error(t, err)
		})
	}
}

func TestRateLimiters(t *testing.T) {
	lims := rateLimiters(config.SourcesConfig{RatePerSec: 3, HistoryRatePerSec: 0.5})
	assert.Equal(t, rate.Limit(3), lims[fetcher.HostListedCompanies].Limit())
	assert.Equal(t, 3, lims[fetcher.HostListedCompanies].Burst())
	assert.Equal(t, rate.Limit(0.5), lims[fetcher.HostHistorical].Limit())
	assert.Equal(t, 1, lims[fetcher.HostHistorical].Burst())

	defaults := rateLimiters(config.SourcesConfig{})
	assert.Equal(t, rate.Limit(20), defaults[fetcher.HostListedCompanies].Limit())
}

func TestAdaptiveLimiters(t *testing.T) {
	off := adaptiveLimiters(config.SourcesConfig{})
	assert.NotNil(t, off, "nil would fall back to the fetcher defaults")
	assert.Empty(t, off)

	lims := adaptiveLimiters(config.SourcesConfig{RatePerSec: 8})
	require.Contains(t, lims, fetcher.HostListedCompanies)
	assert.Equal(t, rate.Limit(8), lims[fetcher.HostListedCompanies].Limit())
}

func TestBuildRegistry(t *testing.T) {
	c := testConfig(t)
	reg, err := buildRegistry(c, nil, initFetcher(c.Sources))
	require.NoError(t, err)
	assert.Equal(t, []string{crawler.JobName, history.JobName}, reg.Names())
}

func TestBuildRegistry_InvalidOptions(t *testing.T) {
	c := testConfig(t)
	c.History.Bucket = "week"
	_, err := buildRegistry(c, nil, initFetcher(c.Sources))
	assert.Error(t, err)
}

func TestInitStore(t *testing.T) {
	withConfig(t, testConfig(t))

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &store.SQLiteStore{}, st)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mysql"
	withConfig(t, c)

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitJobs(t *testing.T) {
	withConfig(t, testConfig(t))

	env, err := initJobs(context.Background(), "sync")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Engine)
	assert.Equal(t, []string{crawler.JobName, history.JobName}, env.Registry.Names())

	runs, err := env.Store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitJobs_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Crawl.MaxParallelism = 0
	withConfig(t, c)

	_, err := initJobs(context.Background(), "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.max_parallelism")
}
