package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketdata-cli/internal/config"
	"github.com/sells-group/marketdata-cli/internal/crawler"
	"github.com/sells-group/marketdata-cli/internal/engine"
	"github.com/sells-group/marketdata-cli/internal/history"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl listed companies, tickers, splits and dividends",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyCrawlFlags(cmd, cfg, "parallelism")
		return runJobs(cmd, "crawl", engine.RunOpts{Jobs: []string{crawler.JobName}})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Download COTAHIST archives and store daily quotes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyHistoryFlags(cmd, cfg, "parallelism")
		return runJobs(cmd, "history", engine.RunOpts{Jobs: []string{history.JobName}})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the crawl and then the price history job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyCrawlFlags(cmd, cfg, "crawl-parallelism")
		applyHistoryFlags(cmd, cfg, "history-parallelism")
		stop, _ := cmd.Flags().GetBool("stop-on-error")
		return runJobs(cmd, "sync", engine.RunOpts{StopOnError: stop})
	},
}

func runJobs(cmd *cobra.Command, mode string, opts engine.RunOpts) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initJobs(ctx, mode)
	if err != nil {
		return err
	}
	defer env.Close()

	_, err = env.Engine.Run(ctx, opts)
	return err
}

// applyCrawlFlags copies explicitly set crawl flags over the loaded config.
func applyCrawlFlags(cmd *cobra.Command, c *config.Config, parallelism string) {
	flags := cmd.Flags()
	if flags.Changed(parallelism) {
		c.Crawl.MaxParallelism, _ = flags.GetInt(parallelism)
	}
	if flags.Changed("companies") {
		c.Crawl.Companies, _ = flags.GetIntSlice("companies")
	}
	if flags.Changed("policy") {
		c.Crawl.UpdatePolicy, _ = flags.GetString("policy")
	}
	if flags.Changed("ancillary") {
		c.Crawl.Ancillary.Mode, _ = flags.GetString("ancillary")
	}
	if flags.Changed("ancillary-tickers") {
		c.Crawl.Ancillary.Tickers, _ = flags.GetStringSlice("ancillary-tickers")
	}
}

// applyHistoryFlags copies explicitly set history flags over the loaded config.
func applyHistoryFlags(cmd *cobra.Command, c *config.Config, parallelism string) {
	flags := cmd.Flags()
	if flags.Changed(parallelism) {
		c.History.MaxParallelism, _ = flags.GetInt(parallelism)
	}
	if flags.Changed("start") {
		c.History.Start, _ = flags.GetString("start")
	}
	if flags.Changed("end") {
		c.History.End, _ = flags.GetString("end")
	}
	if flags.Changed("bucket") {
		c.History.Bucket, _ = flags.GetString("bucket")
	}
	if flags.Changed("skip-weekends") {
		c.History.SkipWeekends, _ = flags.GetBool("skip-weekends")
	}
	if flags.Changed("policy") {
		c.History.UpdatePolicy, _ = flags.GetString("policy")
	}
}

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntSlice("companies", nil, "CVM codes to crawl instead of listing every company")
	cmd.Flags().String("ancillary", "", "split/dividend fetch mode: always, never, allowlist, stale")
	cmd.Flags().StringSlice("ancillary-tickers", nil, "ticker codes for the allowlist mode")
}

func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "first date to fetch, YYYY-MM-DD (default: day after newest stored quote)")
	cmd.Flags().String("end", "", "last date to fetch, YYYY-MM-DD (default: today)")
	cmd.Flags().String("bucket", "", "archive granularity: day, month, year")
	cmd.Flags().Bool("skip-weekends", true, "skip Saturday and Sunday day archives")
}

func init() {
	crawlCmd.Flags().IntP("parallelism", "j", 0, "max concurrent B3 requests (default from config)")
	crawlCmd.Flags().String("policy", "", "existing rows: skip or overwrite")
	addCrawlFlags(crawlCmd)

	historyCmd.Flags().IntP("parallelism", "j", 0, "max concurrent downloads (default from config)")
	historyCmd.Flags().String("policy", "", "existing quotes: skip or overwrite")
	addHistoryFlags(historyCmd)

	syncCmd.Flags().Int("crawl-parallelism", 0, "max concurrent B3 requests (default from config)")
	syncCmd.Flags().Int("history-parallelism", 0, "max concurrent downloads (default from config)")
	syncCmd.Flags().String("policy", "", "existing rows: skip or overwrite")
	syncCmd.Flags().Bool("stop-on-error", false, "skip the price history when the crawl fails")
	addCrawlFlags(syncCmd)
	addHistoryFlags(syncCmd)

	rootCmd.AddCommand(crawlCmd, historyCmd, syncCmd)
}
