package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dorsadeh/wheel/internal/data"
	"github.com/dorsadeh/wheel/internal/models"
	"github.com/dorsadeh/wheel/internal/portfolio"
	"github.com/dorsadeh/wheel/internal/strategy"
)

// RunConfig parameterizes a single backtest run.
type RunConfig struct {
	Ticker         string    `json:"ticker"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialCapital float64   `json:"initial_capital"`
	// Multiplier is the shares-per-contract multiplier; 0 selects the
	// standard 100.
	Multiplier int                     `json:"multiplier,omitempty"`
	Selector   strategy.SelectorConfig `json:"selector"`
	Wheel      strategy.WheelConfig    `json:"wheel"`
}

func (c *RunConfig) validate() error {
	if c.Ticker == "" {
		return errors.New("ticker is required")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %.2f", c.InitialCapital)
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("end date %s precedes start date %s",
			c.End.Format("2006-01-02"), c.Start.Format("2006-01-02"))
	}
	return nil
}

// Result is everything a completed run produced.
type Result struct {
	RunID          string           `json:"run_id"`
	Ticker         string           `json:"ticker"`
	Start          time.Time        `json:"start"`
	End            time.Time        `json:"end"`
	InitialCapital float64          `json:"initial_capital"`
	Config         RunConfig        `json:"config"`
	FinalEquity    float64          `json:"final_equity"`
	TradingDays    int              `json:"trading_days"`
	Equity         EquityCurve      `json:"equity"`
	Transactions   []Transaction    `json:"transactions"`
	Summary        strategy.Summary `json:"summary"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// Engine wires data providers to the strategy and runs it day by day.
type Engine struct {
	options data.OptionsProvider
	prices  data.PriceProvider
	log     *logrus.Logger
}

// NewEngine builds an engine over the given providers. The options and
// price providers may be the same value.
func NewEngine(options data.OptionsProvider, prices data.PriceProvider, log *logrus.Logger) *Engine {
	return &Engine{options: options, prices: prices, log: log}
}

// Run executes one backtest. The chain history and underlying bars are
// fetched concurrently, then the strategy is driven over each trading day
// in order. Days without chain data still resolve expirations and mark
// equity; they simply cannot open new positions.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	start, end := models.Day(cfg.Start), models.Day(cfg.End)
	runID := uuid.NewString()
	log := e.log.WithFields(logrus.Fields{"run_id": runID, "ticker": cfg.Ticker})
	log.WithFields(logrus.Fields{
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
		"capital": cfg.InitialCapital,
	}).Info("Starting backtest")

	var (
		hist *data.ChainHistory
		bars []data.Bar
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := e.options.OptionsHistory(gctx, cfg.Ticker)
		if err != nil {
			return fmt.Errorf("loading option chains: %w", err)
		}
		hist = h
		return nil
	})
	g.Go(func() error {
		b, err := e.prices.DailyBars(gctx, cfg.Ticker, start, end)
		if err != nil {
			return fmt.Errorf("loading underlying bars: %w", err)
		}
		bars = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = models.SharesPerContract
	}
	ledger := portfolio.NewLedgerWithMultiplier(cfg.InitialCapital, multiplier)
	wheel := strategy.NewWheel(ledger, strategy.NewSelector(cfg.Selector), cfg.Wheel, e.log)

	res := &Result{
		RunID:          runID,
		Ticker:         cfg.Ticker,
		Start:          start,
		End:            end,
		InitialCapital: cfg.InitialCapital,
		Config:         cfg,
		Equity:         make(EquityCurve, 0, len(bars)+1),
	}

	// The curve opens with an all-cash point on the first trading day,
	// before any positions exist.
	if len(bars) > 0 {
		res.Equity = append(res.Equity, EquityPoint{
			Date:            bars[0].Date,
			Equity:          cfg.InitialCapital,
			Cash:            cfg.InitialCapital,
			UnderlyingClose: bars[0].Close,
		})
	}

	for _, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("backtest canceled: %w", ctx.Err())
		default:
		}

		chain := hist.ChainFor(bar.Date)
		events, err := wheel.ProcessDay(bar.Date, bar.Close, chain)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", bar.Date.Format("2006-01-02"), err)
		}
		for _, ev := range events {
			res.Transactions = append(res.Transactions, newTransaction(ev, ledger.Cash(), ledger.Shares()))
		}

		res.Equity = append(res.Equity, EquityPoint{
			Date:            bar.Date,
			Equity:          ledger.Equity(bar.Close, markPositions(chain, ledger.OpenPositions())),
			Cash:            ledger.Cash(),
			Shares:          ledger.Shares(),
			UnderlyingClose: bar.Close,
		})
	}

	res.TradingDays = len(bars)
	res.FinalEquity = res.Equity.Final()
	res.Summary = wheel.Summarize()
	res.CompletedAt = time.Now().UTC()

	log.WithFields(logrus.Fields{
		"days":         res.TradingDays,
		"final_equity": res.FinalEquity,
		"transactions": len(res.Transactions),
		"final_state":  res.Summary.FinalState,
	}).Info("Backtest complete")
	return res, nil
}

// markPositions looks up the day's midpoint for each open position so
// equity can be marked to market. Positions without a matching quote are
// left to the ledger's intrinsic fallback.
func markPositions(chain models.Chain, positions []models.OptionPosition) map[models.PositionID]float64 {
	if len(chain) == 0 || len(positions) == 0 {
		return nil
	}
	marks := make(map[models.PositionID]float64, len(positions))
	for _, pos := range positions {
		for i := range chain {
			q := &chain[i]
			if q.Kind == pos.Kind && q.Strike == pos.Strike &&
				models.Day(q.Expiration).Equal(models.Day(pos.Expiration)) {
				marks[pos.ID] = q.Mid()
				break
			}
		}
	}
	return marks
}
