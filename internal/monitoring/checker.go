package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker collects job health on an interval and posts alerts. An alert is
// posted once when it starts firing and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	// active holds the alerts raised by the previous check, keyed by job and type.
	active map[alertKey]bool
}

type alertKey struct {
	job string
	typ AlertType
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[alertKey]bool),
	}
}

// Run checks once immediately, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("job health checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Int("stale_after_hours", c.cfg.StaleAfterHours),
	)

	if ctx.Err() == nil {
		c.check(ctx, log)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("job health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: collect job health", zap.Error(err))
		return
	}

	fresh := c.firing(c.alerter.Evaluate(snap))
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("active", len(c.active)))
		return
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alerts posted",
		zap.Int("new", len(fresh)),
		zap.Int("sent", sent),
		zap.Int("active", len(c.active)),
	)
}

// firing replaces the active set with alerts and returns the ones that were
// not active on the previous check.
func (c *Checker) firing(alerts []Alert) []Alert {
	next := make(map[alertKey]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		k := alertKey{job: a.Job, typ: a.Type}
		next[k] = true
		if !c.active[k] {
			fresh = append(fresh, a)
		}
	}
	c.active = next
	return fresh
}
