// Package analytics computes performance metrics over a completed run's
// equity curve and trade ledger.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dorsadeh/wheel/internal/backtest"
	"github.com/dorsadeh/wheel/internal/models"
)

// tradingDaysPerYear is the annualization convention for daily series.
const tradingDaysPerYear = 252

// Metrics summarizes a run's performance. Ratios are annualized from daily
// returns; drawdowns are measured on the equity curve itself.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	CAGR             float64 `json:"cagr"`
	AnnualVolatility float64 `json:"annual_volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownDays  int     `json:"max_drawdown_days"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	BestDay          float64 `json:"best_day"`
	WorstDay         float64 `json:"worst_day"`
	TradesClosed     int     `json:"trades_closed"`
}

// Compute derives metrics from a run result. riskFreeRate is annual; it is
// deflated to a daily rate internally.
func Compute(res *backtest.Result, riskFreeRate float64) Metrics {
	m := Metrics{}
	curve := res.Equity
	if len(curve) == 0 || res.InitialCapital <= 0 {
		return m
	}

	final := curve.Final()
	m.TotalReturn = final/res.InitialCapital - 1
	m.CAGR = cagr(res.InitialCapital, final, len(curve))

	returns := curve.Returns()
	if len(returns) > 1 {
		dailyRF := riskFreeRate / tradingDaysPerYear
		mean := stat.Mean(returns, nil)
		std := stat.StdDev(returns, nil)

		m.AnnualVolatility = std * math.Sqrt(tradingDaysPerYear)
		if std > 0 {
			m.SharpeRatio = (mean - dailyRF) / std * math.Sqrt(tradingDaysPerYear)
		}
		if dd := downsideDeviation(returns, dailyRF); dd > 0 {
			m.SortinoRatio = (mean - dailyRF) / dd * math.Sqrt(tradingDaysPerYear)
		}
		m.BestDay = extreme(returns, math.Max)
		m.WorstDay = extreme(returns, math.Min)
	}

	m.MaxDrawdown, m.MaxDrawdownDays = maxDrawdown(curve.Values())
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.CAGR / m.MaxDrawdown
	}

	m.WinRate, m.ProfitFactor, m.TradesClosed = tradeStats(res.Transactions)
	return m
}

// cagr annualizes total growth over the given number of trading days.
func cagr(initial, final float64, days int) float64 {
	if days == 0 || initial <= 0 {
		return 0
	}
	if final <= 0 {
		return -1
	}
	years := float64(days) / tradingDaysPerYear
	return math.Pow(final/initial, 1/years) - 1
}

// downsideDeviation is the root mean square of returns below the target.
func downsideDeviation(returns []float64, target float64) float64 {
	sum := 0.0
	for _, r := range returns {
		if d := r - target; d < 0 {
			sum += d * d
		}
	}
	return math.Sqrt(sum / float64(len(returns)))
}

// maxDrawdown returns the deepest peak-to-trough loss as a positive
// fraction, and the length in trading days of the longest stretch spent
// below a prior peak.
func maxDrawdown(values []float64) (float64, int) {
	if len(values) == 0 {
		return 0, 0
	}
	peak := values[0]
	maxDD := 0.0
	longest, current := 0, 0
	for _, v := range values {
		if v >= peak {
			peak = v
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD, longest
}

// tradeStats computes the win rate and profit factor over closed trades.
// Only events that realize P&L count; sells open positions and carry none.
func tradeStats(txs []backtest.Transaction) (winRate, profitFactor float64, closed int) {
	grossProfit, grossLoss := 0.0, 0.0
	wins := 0
	for _, tx := range txs {
		switch tx.Kind {
		case models.EventPutExpired, models.EventCallExpired,
			models.EventPutAssigned, models.EventCallAssigned:
		default:
			continue
		}
		closed++
		if tx.PnL > 0 {
			wins++
			grossProfit += tx.PnL
		} else {
			grossLoss += -tx.PnL
		}
	}
	if closed > 0 {
		winRate = float64(wins) / float64(closed)
	}
	switch {
	case grossLoss > 0:
		profitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profitFactor = math.Inf(1)
	}
	return winRate, profitFactor, closed
}

func extreme(values []float64, pick func(float64, float64) float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		out = pick(out, v)
	}
	return out
}
