package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "crawl", "history", "sync", "status", "serve", "schedule", "sectors", "splits"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "marketdata-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotEmpty(t, rootCmd.Version)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestCrawlCommand_Flags(t *testing.T) {
	flag := crawlCmd.Flags().Lookup("parallelism")
	require.NotNil(t, flag)
	assert.Equal(t, "j", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)

	for _, name := range []string{"companies", "policy", "ancillary", "ancillary-tickers"} {
		assert.NotNil(t, crawlCmd.Flags().Lookup(name), name)
	}
}

func TestHistoryCommand_Flags(t *testing.T) {
	for _, name := range []string{"parallelism", "start", "end", "bucket", "skip-weekends", "policy"} {
		assert.NotNil(t, historyCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "true", historyCmd.Flags().Lookup("skip-weekends").DefValue)
}

func TestSyncCommand_Flags(t *testing.T) {
	for _, name := range []string{"crawl-parallelism", "history-parallelism", "stop-on-error", "companies", "start", "bucket"} {
		assert.NotNil(t, syncCmd.Flags().Lookup(name), name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestNestedCommands(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"sectors", "import"})
	require.NoError(t, err)
	assert.Equal(t, "import", cmd.Name())

	cmd, _, err = rootCmd.Find([]string{"splits", "factors"})
	require.NoError(t, err)
	assert.Equal(t, "factors", cmd.Name())
	assert.NotNil(t, cmd.Flags().ShorthandLookup("t"))
}

func TestApplyLogFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "status"}
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	require.NoError(t, cmd.Flags().Parse([]string{"--log-level", "debug"}))

	lc := config.LogConfig{Level: "info", Format: "json"}
	applyLogFlags(cmd, &lc)

	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format, "unset flag keeps the configured format")
}
