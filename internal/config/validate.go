package config

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
)

// DateLayout is the format of history.start and history.end.
const DateLayout = "2006-01-02"

// Validate checks the settings a command mode needs. Modes: migrate, crawl,
// history, sync, schedule, serve, status, sectors, splits.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required (path of the sqlite file)")
			}
		default:
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
	}
	needCrawl := func() {
		if c.Crawl.MaxParallelism < 1 || c.Crawl.MaxParallelism > 100 {
			errs = append(errs, "crawl.max_parallelism must be between 1 and 100")
		}
		if !oneOf(c.Crawl.UpdatePolicy, "", "skip", "overwrite") {
			errs = append(errs, "crawl.update_policy must be skip or overwrite")
		}
		if !oneOf(c.Crawl.Ancillary.Mode, "", "always", "never", "allowlist", "stale") {
			errs = append(errs, "crawl.ancillary.mode must be always, never, allowlist or stale")
		}
		if c.Crawl.Ancillary.MaxFetches < 0 {
			errs = append(errs, "crawl.ancillary.max_fetches must be >= 0")
		}
	}
	needHistory := func() {
		if c.History.MaxParallelism < 1 || c.History.MaxParallelism > 64 {
			errs = append(errs, "history.max_parallelism must be between 1 and 64")
		}
		if !oneOf(c.History.Bucket, "", "day", "month", "year") {
			errs = append(errs, "history.bucket must be day, month or year")
		}
		if !oneOf(c.History.UpdatePolicy, "", "skip", "overwrite") {
			errs = append(errs, "history.update_policy must be skip or overwrite")
		}
		for key, v := range map[string]string{"history.start": c.History.Start, "history.end": c.History.End} {
			if v == "" {
				continue
			}
			if _, err := time.Parse(DateLayout, v); err != nil {
				errs = append(errs, key+" must be YYYY-MM-DD")
			}
		}
	}
	needServer := func() {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
	}

	switch mode {
	case "migrate", "status", "sectors", "splits":
		needStore()
	case "crawl":
		needStore()
		needCrawl()
	case "history":
		needStore()
		needHistory()
	case "sync":
		needStore()
		needCrawl()
		needHistory()
	case "schedule":
		needStore()
		needCrawl()
		needHistory()
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		for key, spec := range map[string]string{"schedule.crawl": c.Schedule.Crawl, "schedule.history": c.Schedule.History} {
			if spec == "" {
				continue
			}
			if _, err := parser.Parse(spec); err != nil {
				errs = append(errs, key+" is not a valid cron spec")
			}
		}
		if c.Schedule.Crawl == "" && c.Schedule.History == "" {
			errs = append(errs, "schedule needs at least one of schedule.crawl or schedule.history")
		}
		if c.Schedule.Timezone != "" {
			if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
				errs = append(errs, "schedule.timezone is not a known location")
			}
		}
	case "serve":
		needStore()
		needServer()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
