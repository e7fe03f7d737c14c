package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dorsadeh/wheel/internal/analytics"
	"github.com/dorsadeh/wheel/internal/backtest"
	"github.com/dorsadeh/wheel/internal/config"
	"github.com/dorsadeh/wheel/internal/data"
	"github.com/dorsadeh/wheel/internal/history"
	"github.com/dorsadeh/wheel/internal/report"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		ticker   string
		startStr string
		endStr   string
		capital  float64
		noSave   bool
		noReport bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a wheel backtest",
		Long: `Run the wheel strategy over the configured window and print the
results. The equity curve and trade ledger are written to the output
directory and the run is recorded in the history database.`,
		Example: `  wheel run
  wheel run --ticker QQQ --start 2022-01-03 --end 2023-12-29
  wheel run --no-save --no-report`,
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

			options, prices, err := app.buildProviders(cfg, start, end)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			engine := backtest.NewEngine(options, prices, app.Log)
			res, err := engine.Run(ctx, backtest.RunConfig{
				Ticker:         cfg.Backtest.Ticker,
				Start:          start,
				End:            end,
				InitialCapital: cfg.Backtest.InitialCapital,
				Multiplier:     cfg.Strategy.ContractMultiplier,
				Selector:       cfg.SelectorConfig(),
				Wheel:          cfg.WheelConfig(),
			})
			if err != nil {
				return err
			}

			m := analytics.Compute(res, cfg.Backtest.RiskFreeRate)

			var artifacts []string
			if !noReport {
				writer, err := report.NewWriter(cfg.Output.Dir, app.Log)
				if err != nil {
					return err
				}
				files, err := writer.Write(res, m)
				if err != nil {
					return err
				}
				artifacts = files.Paths()
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", files.Summary)
			}

			if !noSave {
				store, err := history.Open(cfg.History.Path, app.Log)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if err := store.Save(res, m, artifacts); err != nil {
					return err
				}
			}

			printRunResult(cmd, res, m)
			return nil
		},
	}

	cmd.Flags().StringVarP(&ticker, "ticker", "t", "", "override the configured ticker")
	cmd.Flags().StringVar(&startStr, "start", "", "override the start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "override the end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&capital, "capital", 0, "override the initial capital")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip recording the run in history")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "skip writing CSV/JSON artifacts")
	return cmd
}

// buildProviders constructs the configured data source. The dataset and
// synthetic providers both serve chains and bars, so the same value is
// returned for both roles.
func (a *App) buildProviders(cfg *config.Config, start, end time.Time) (data.OptionsProvider, data.PriceProvider, error) {
	switch cfg.Data.Provider {
	case "synthetic":
		p := data.NewSyntheticProvider(start, end, cfg.Data.SyntheticStartPrice, cfg.Data.SyntheticSeed)
		return p, p, nil
	default:
		cache, err := data.NewCache(cfg.Data.CacheDir, a.Log)
		if err != nil {
			return nil, nil, err
		}
		client := data.NewClient(nil, a.Log)
		p := data.NewDatasetProvider(cfg.Data.BaseURL, client, cache, a.Log)
		if err := p.Validate(cfg.Backtest.Ticker, start, end); err != nil {
			return nil, nil, err
		}
		return p, p, nil
	}
}

func printRunResult(cmd *cobra.Command, res *backtest.Result, m analytics.Metrics) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRun %s  %s  %s to %s  (%d trading days)\n",
		res.RunID[:8], res.Ticker,
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.TradingDays)
	fmt.Fprintf(out, "  Initial capital:  %14.2f\n", res.InitialCapital)
	fmt.Fprintf(out, "  Final equity:     %14.2f\n", res.FinalEquity)
	fmt.Fprintf(out, "  Total return:     %13.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(out, "  CAGR:             %13.2f%%\n", m.CAGR*100)
	fmt.Fprintf(out, "  Sharpe / Sortino: %8.2f / %.2f\n", m.SharpeRatio, m.SortinoRatio)
	fmt.Fprintf(out, "  Max drawdown:     %13.2f%% (%d days)\n", m.MaxDrawdown*100, m.MaxDrawdownDays)
	fmt.Fprintf(out, "  Win rate:         %13.2f%%  over %d closed trades\n", m.WinRate*100, m.TradesClosed)
	fmt.Fprintf(out, "  Puts sold:        %8d  (%d assigned, %d expired)\n",
		res.Summary.PutsSold, res.Summary.PutAssignments, res.Summary.PutsExpiredOTM)
	fmt.Fprintf(out, "  Calls sold:       %8d  (%d assigned, %d expired)\n",
		res.Summary.CallsSold, res.Summary.CallAssignments, res.Summary.CallsExpiredOTM)
	fmt.Fprintf(out, "  Premium collected:%14.2f\n", res.Summary.TotalPremium)
	fmt.Fprintf(out, "  Final state:      %14s\n", res.Summary.FinalState)
}
