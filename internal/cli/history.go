package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dorsadeh/wheel/internal/history"
)

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded backtest runs",
	}
	cmd.AddCommand(newHistoryListCmd(app))
	cmd.AddCommand(newHistoryShowCmd(app))
	cmd.AddCommand(newHistoryBestCmd(app))
	cmd.AddCommand(newHistoryDeleteCmd(app))
	return cmd
}

func (a *App) openHistory() (*history.Store, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History.Path, a.Log)
}

func newHistoryListCmd(app *App) *cobra.Command {
	var (
		ticker string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var recs []history.Record
			if ticker != "" {
				recs, err = store.ListByTicker(strings.ToUpper(ticker), limit)
			} else {
				recs, err = store.List(limit)
			}
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tTICKER\tWINDOW\tFINAL EQUITY\tRETURN\tSHARPE\tMAX DD\tSTATE")
			for _, r := range recs {
				fmt.Fprintf(w, "%.8s\t%s\t%s to %s\t%.2f\t%.2f%%\t%.2f\t%.2f%%\t%s\n",
					r.ID, r.Ticker,
					r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
					r.FinalEquity, r.TotalReturn*100, r.SharpeRatio, r.MaxDrawdown*100,
					r.FinalState)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&ticker, "ticker", "t", "", "only show runs for this ticker")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")
	return cmd
}

func newHistoryShowCmd(app *App) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, res, err := store.Get(args[0])
			if err != nil {
				return err
			}

			var doc any = rec
			if full {
				doc = map[string]any{"record": rec, "result": res}
			}
			b, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include the equity curve and transactions")
	return cmd
}

func newHistoryBestCmd(app *App) *cobra.Command {
	var (
		metric string
		ticker string
	)
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Show the best recorded run",
		Long: `Show the run ranking highest on a metric. Accepted metrics are
total_return, cagr, sharpe_ratio, win_rate, final_equity, and
max_drawdown (lowest wins).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			best, err := store.Best(metric, strings.ToUpper(ticker))
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(best, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "total_return", "metric to rank runs by")
	cmd.Flags().StringVarP(&ticker, "ticker", "t", "", "only consider runs for this ticker")
	return cmd
}

func newHistoryDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
