package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/dorsadeh/wheel/internal/backtest"
	"github.com/dorsadeh/wheel/internal/data"
)

// Benchmark computes the buy-and-hold equity curve a wheel run is measured
// against: buy on the first trading day, hold through the window.
type Benchmark struct {
	prices data.PriceProvider
}

// NewBenchmark builds a benchmark calculator over a price provider.
func NewBenchmark(prices data.PriceProvider) *Benchmark {
	return &Benchmark{prices: prices}
}

// BenchmarkResult is a completed buy-and-hold calculation.
type BenchmarkResult struct {
	Ticker         string               `json:"ticker"`
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	InitialCapital float64              `json:"initial_capital"`
	Shares         int                  `json:"shares"`
	FinalEquity    float64              `json:"final_equity"`
	TotalReturn    float64              `json:"total_return"`
	CAGR           float64              `json:"cagr"`
	MaxDrawdown    float64              `json:"max_drawdown"`
	TradingDays    int                  `json:"trading_days"`
	Equity         backtest.EquityCurve `json:"equity"`
}

// Calculate buys as many whole shares as the first close affords, carries
// the remainder as cash, and marks equity at every close in the window.
func (b *Benchmark) Calculate(ctx context.Context, ticker string, start, end time.Time, capital float64) (*BenchmarkResult, error) {
	if capital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %.2f", capital)
	}

	bars, err := b.prices.DailyBars(ctx, ticker, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading underlying bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("benchmarking %s: %w", ticker, data.ErrNoData)
	}
	if bars[0].Close <= 0 {
		return nil, fmt.Errorf("benchmarking %s: first close %.2f is not positive", ticker, bars[0].Close)
	}

	shares := int(capital / bars[0].Close)
	cash := capital - float64(shares)*bars[0].Close

	curve := make(backtest.EquityCurve, 0, len(bars))
	for _, bar := range bars {
		curve = append(curve, backtest.EquityPoint{
			Date:            bar.Date,
			Equity:          cash + float64(shares)*bar.Close,
			Cash:            cash,
			Shares:          shares,
			UnderlyingClose: bar.Close,
		})
	}

	res := &BenchmarkResult{
		Ticker:         ticker,
		Start:          bars[0].Date,
		End:            bars[len(bars)-1].Date,
		InitialCapital: capital,
		Shares:         shares,
		FinalEquity:    curve.Final(),
		TradingDays:    len(bars),
		Equity:         curve,
	}
	res.TotalReturn = res.FinalEquity/capital - 1
	res.CAGR = cagr(capital, res.FinalEquity, len(bars))
	res.MaxDrawdown, _ = maxDrawdown(curve.Values())
	return res, nil
}
