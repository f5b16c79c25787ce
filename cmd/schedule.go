package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/crawler"
	"github.com/sells-group/marketdata-cli/internal/engine"
	"github.com/sells-group/marketdata-cli/internal/history"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the crawl and history jobs on their cron schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initJobs(ctx, "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		loc, err := time.LoadLocation(cfg.Schedule.Timezone)
		if err != nil {
			return eris.Wrapf(err, "schedule: load timezone %s", cfg.Schedule.Timezone)
		}

		s := newScheduler(env.Engine)
		c := cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{zap.L().Named("cron")})),
		)
		if err := s.register(ctx, c, cfg.Schedule); err != nil {
			return err
		}

		if cfg.Schedule.RunOnStart {
			for _, job := range scheduledJobs(cfg.Schedule) {
				s.run(ctx, job)
			}
		}

		c.Start()
		zap.L().Info("scheduler started", zap.Int("entries", len(c.Entries())), zap.String("timezone", loc.String()))

		<-ctx.Done()
		zap.L().Info("stopping scheduler")
		// Wait for a job in progress to observe the cancelled context.
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

// scheduler runs engine jobs from cron entries, one job at a time.
type scheduler struct {
	eng *engine.Engine
	mu  sync.Mutex
}

func newScheduler(eng *engine.Engine) *scheduler {
	return &scheduler{eng: eng}
}

// scheduledJobs returns the jobs with a cron spec, in sync order.
func scheduledJobs(sc config.ScheduleConfig) []string {
	var jobs []string
	if sc.Crawl != "" {
		jobs = append(jobs, crawler.JobName)
	}
	if sc.History != "" {
		jobs = append(jobs, history.JobName)
	}
	return jobs
}

func (s *scheduler) register(ctx context.Context, c *cron.Cron, sc config.ScheduleConfig) error {
	specs := map[string]string{
		crawler.JobName: sc.Crawl,
		history.JobName: sc.History,
	}
	for _, job := range scheduledJobs(sc) {
		if _, err := c.AddFunc(specs[job], func() { s.run(ctx, job) }); err != nil {
			return eris.Wrapf(err, "schedule: add %s (%q)", job, specs[job])
		}
		zap.L().Info("scheduled job added", zap.String("job", job), zap.String("spec", specs[job]))
	}
	return nil
}

// run executes one job through the engine. Failures are logged and recorded
// in the run log; the next tick tries again.
func (s *scheduler) run(ctx context.Context, job string) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	zap.L().Info("executing scheduled job", zap.String("job", job))
	sum, err := s.eng.Run(ctx, engine.RunOpts{Jobs: []string{job}})
	if err != nil {
		zap.L().Error("scheduled job failed", zap.String("job", job), zap.Error(err))
		return
	}
	zap.L().Info("scheduled job finished", zap.String("job", job), zap.Int64("rows", sum.Rows))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
