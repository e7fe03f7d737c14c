// Package backtest drives the wheel strategy over historical data and
// collects the run's equity curve and trade ledger.
package backtest

import "time"

// EquityPoint is the portfolio snapshot at one trading day's close.
type EquityPoint struct {
	Date            time.Time `json:"date" csv:"date"`
	Equity          float64   `json:"equity" csv:"equity"`
	Cash            float64   `json:"cash" csv:"cash"`
	Shares          int       `json:"shares" csv:"shares"`
	UnderlyingClose float64   `json:"underlying_close" csv:"underlying_close"`
}

// EquityCurve is the per-day equity series, in date order.
type EquityCurve []EquityPoint

// Final returns the last equity value, or 0 for an empty curve.
func (c EquityCurve) Final() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Equity
}

// Values returns the raw equity series.
func (c EquityCurve) Values() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Equity
	}
	return out
}

// Returns computes simple daily returns. Days where the prior equity is
// zero contribute a zero return.
func (c EquityCurve) Returns() []float64 {
	if len(c) < 2 {
		return nil
	}
	out := make([]float64, 0, len(c)-1)
	for i := 1; i < len(c); i++ {
		prev := c[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, c[i].Equity/prev-1)
	}
	return out
}
