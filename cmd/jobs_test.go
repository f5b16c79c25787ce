package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(name string) *cobra.Command {
	cmd := &cobra.Command{Use: name}
	cmd.Flags().IntP("parallelism", "j", 0, "")
	cmd.Flags().String("policy", "", "")
	addCrawlFlags(cmd)
	addHistoryFlags(cmd)
	return cmd
}

func TestApplyCrawlFlags(t *testing.T) {
	cmd := newFlagCommand("crawl")
	require.NoError(t, cmd.ParseFlags([]string{
		"-j", "3",
		"--companies", "9512,4170",
		"--policy", "overwrite",
		"--ancillary", "allowlist",
		"--ancillary-tickers", "PETR,VALE",
	}))

	c := testConfig(t)
	applyCrawlFlags(cmd, c, "parallelism")

	assert.Equal(t, 3, c.Crawl.MaxParallelism)
	assert.Equal(t, []int{9512, 4170}, c.Crawl.Companies)
	assert.Equal(t, "overwrite", c.Crawl.UpdatePolicy)
	assert.Equal(t, "allowlist", c.Crawl.Ancillary.Mode)
	assert.Equal(t, []string{"PETR", "VALE"}, c.Crawl.Ancillary.Tickers)
}

func TestApplyCrawlFlags_UnsetKeepsConfig(t *testing.T) {
	cmd := newFlagCommand("crawl")
	require.NoError(t, cmd.ParseFlags(nil))

	c := testConfig(t)
	applyCrawlFlags(cmd, c, "parallelism")

	assert.Equal(t, 10, c.Crawl.MaxParallelism)
	assert.Equal(t, "skip", c.Crawl.UpdatePolicy)
	assert.Equal(t, "always", c.Crawl.Ancillary.Mode)
	assert.Empty(t, c.Crawl.Companies)
}

func TestApplyHistoryFlags(t *testing.T) {
	cmd := newFlagCommand("history")
	require.NoError(t, cmd.ParseFlags([]string{
		"-j", "2",
		"--start", "2024-01-01",
		"--end", "2024-01-31",
		"--bucket", "month",
		"--skip-weekends=false",
	}))

	c := testConfig(t)
	applyHistoryFlags(cmd, c, "parallelism")

	assert.Equal(t, 2, c.History.MaxParallelism)
	assert.Equal(t, "2024-01-01", c.History.Start)
	assert.Equal(t, "2024-01-31", c.History.End)
	assert.Equal(t, "month", c.History.Bucket)
	assert.False(t, c.History.SkipWeekends)
	assert.Equal(t, "skip", c.History.UpdatePolicy)
}

func TestApplyFlags_SyncParallelismNames(t *testing.T) {
	cmd := &cobra.Command{Use: "sync"}
	cmd.Flags().Int("crawl-parallelism", 0, "")
	cmd.Flags().Int("history-parallelism", 0, "")
	addCrawlFlags(cmd)
	addHistoryFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--crawl-parallelism", "20", "--history-parallelism", "8"}))

	c := testConfig(t)
	applyCrawlFlags(cmd, c, "crawl-parallelism")
	applyHistoryFlags(cmd, c, "history-parallelism")

	assert.Equal(t, 20, c.Crawl.MaxParallelism)
	assert.Equal(t, 8, c.History.MaxParallelism)
}
