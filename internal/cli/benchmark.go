package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dorsadeh/wheel/internal/analytics"
)

func newBenchmarkCmd(app *App) *cobra.Command {
	var (
		ticker   string
		startStr string
		endStr   string
		capital  float64
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Calculate a buy-and-hold benchmark",
		Long: `Calculate the equity curve of buying the underlying on the first
trading day and holding through the window, for comparison against a
wheel run over the same period.`,
		Example: `  wheel benchmark
  wheel benchmark --ticker QQQ --start 2022-01-03 --end 2023-12-29`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}

			if ticker != "" {
				cfg.Backtest.Ticker = strings.ToUpper(ticker)
			}
			if startStr != "" {
				cfg.Backtest.StartDate = startStr
			}
			if endStr != "" {
				cfg.Backtest.EndDate = endStr
			}
			if capital > 0 {
				cfg.Backtest.InitialCapital = capital
			}

			start, err := cfg.StartDate()
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
			end, err := cfg.EndDate()
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}

			_, prices, err := app.buildProviders(cfg, start, end)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			res, err := analytics.NewBenchmark(prices).Calculate(
				ctx, cfg.Backtest.Ticker, start, end, cfg.Backtest.InitialCapital)
			if err != nil {
				return err
			}

			printBenchmarkResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&ticker, "ticker", "t", "", "override the configured ticker")
	cmd.Flags().StringVar(&startStr, "start", "", "override the start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "override the end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&capital, "capital", 0, "override the initial capital")
	return cmd
}

func printBenchmarkResult(cmd *cobra.Command, res *analytics.BenchmarkResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nBuy-and-hold %s  %s to %s  (%d trading days)\n",
		res.Ticker,
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.TradingDays)
	fmt.Fprintf(out, "  Initial capital:  %14.2f\n", res.InitialCapital)
	fmt.Fprintf(out, "  Shares held:      %8d\n", res.Shares)
	fmt.Fprintf(out, "  Final value:      %14.2f\n", res.FinalEquity)
	fmt.Fprintf(out, "  Total return:     %13.2f%%\n", res.TotalReturn*100)
	fmt.Fprintf(out, "  CAGR:             %13.2f%%\n", res.CAGR*100)
	fmt.Fprintf(out, "  Max drawdown:     %13.2f%%\n", res.MaxDrawdown*100)
}
