package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketdata-cli/internal/sectors"
)

var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "Manage the industry to sector mapping",
}

var sectorsImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Assign industries to sectors from a spreadsheet",
	Long:  "Reads rows of (industry id, industry name, sector id or name) and moves each industry under its sector.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sectors"); err != nil {
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

		known, err := st.Sectors(ctx)
		if err != nil {
			return err
		}
		if len(known) == 0 {
			return eris.New("sectors: no sectors stored, run migrate first")
		}

		sheet, _ := cmd.Flags().GetString("sheet")
		header, _ := cmd.Flags().GetInt("header-rows")
		assignments, err := sectors.ImportXLSX(args[0], known, sectors.ImportOptions{SheetName: sheet, HeaderRows: header})
		if err != nil {
			return err
		}

		n, err := st.AssignSectors(ctx, assignments)
		if err != nil {
			return err
		}
		zap.L().Info("sector assignments imported",
			zap.String("file", args[0]),
			zap.Int("rows", len(assignments)),
			zap.Int64("industries_updated", n),
		)
		return nil
	},
}

func init() {
	sectorsImportCmd.Flags().String("sheet", "", "sheet name (default: first sheet)")
	sectorsImportCmd.Flags().Int("header-rows", 1, "leading rows to skip")
	sectorsCmd.AddCommand(sectorsImportCmd)
	rootCmd.AddCommand(sectorsCmd)
}
