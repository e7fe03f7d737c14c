package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dorsadeh/wheel/internal/data"
)

func newTickersCmd(_ *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tickers",
		Short: "List tickers covered by the historical dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICKER\tCATEGORY")
			for _, t := range data.AvailableTickers() {
				fmt.Fprintf(w, "%s\t%s\n", t, data.TickerCategory(t))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nCoverage: %s to %s\n",
				data.DatasetStart.Format("2006-01-02"), data.DatasetEnd.Format("2006-01-02"))
			return nil
		},
	}
}
