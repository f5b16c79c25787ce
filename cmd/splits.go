package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketdata-cli/internal/model"
)

var splitsCmd = &cobra.Command{
	Use:   "splits",
	Short: "Inspect stored splits",
}

var splitsFactorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "Print a ticker's cumulative split factors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("splits"); err != nil {
			return err
		}

		ticker, _ := cmd.Flags().GetString("ticker")
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" {
			return eris.New("splits: --ticker is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		splits, err := st.Splits(ctx, ticker)
		if err != nil {
			return err
		}
		if len(splits) == 0 {
			fmt.Fprintf(os.Stderr, "No splits stored for %s.\n", ticker)
			return nil
		}

		formatFactors(os.Stdout, model.CumulativeFactors(splits))
		return nil
	},
}

func init() {
	splitsFactorsCmd.Flags().StringP("ticker", "t", "", "ticker symbol, e.g. PETR4")
	splitsCmd.AddCommand(splitsFactorsCmd)
	rootCmd.AddCommand(splitsCmd)
}

func formatFactors(out io.Writer, factors []model.SplitFactor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "APPROVED\tFACTOR\tCUMULATIVE")
	for _, f := range factors {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.ApprovedOn.Format("2006-01-02"), f.Factor.String(), f.Cumulative.String())
	}
	_ = w.Flush()
}
