package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/sectors"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the sector list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		seed, err := sectors.Seed()
		if err != nil {
			return err
		}
		if err := st.SeedSectors(ctx, seed); err != nil {
			return eris.Wrap(err, "seed sectors")
		}

		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver), zap.Int("sectors", len(seed)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
