package models

import (
	"sort"
	"time"
)

// OptionQuote is one row of a daily option chain. The strategy consumes only
// strike, kind, expiration, bid, ask, and delta; the remaining columns are
// carried through from the data provider for reporting.
type OptionQuote struct {
	TradeDate    time.Time  `json:"trade_date" csv:"date"`
	Expiration   time.Time  `json:"expiration" csv:"expiration"`
	Strike       float64    `json:"strike" csv:"strike"`
	Kind         OptionKind `json:"kind" csv:"type"`
	Bid          float64    `json:"bid" csv:"bid"`
	Ask          float64    `json:"ask" csv:"ask"`
	Last         float64    `json:"last,omitempty" csv:"last"`
	Volume       int64      `json:"volume,omitempty" csv:"volume"`
	OpenInterest int64      `json:"open_interest,omitempty" csv:"open_interest"`
	ImpliedVol   float64    `json:"implied_volatility,omitempty" csv:"implied_volatility"`
	Delta        *float64   `json:"delta,omitempty" csv:"delta"`
	Gamma        *float64   `json:"gamma,omitempty" csv:"gamma"`
	Theta        *float64   `json:"theta,omitempty" csv:"theta"`
	Vega         *float64   `json:"vega,omitempty" csv:"vega"`
	Rho          *float64   `json:"rho,omitempty" csv:"rho"`
}

// Mid returns the bid/ask midpoint.
func (q *OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Chain is a single trading day's option chain.
type Chain []OptionQuote

// Filter returns the rows matching the given kind.
func (c Chain) Filter(kind OptionKind) Chain {
	out := make(Chain, 0, len(c))
	for _, q := range c {
		if q.Kind == kind {
			out = append(out, q)
		}
	}
	return out
}

// Expirations returns the unique expiration dates in the chain, ascending.
func (c Chain) Expirations() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, q := range c {
		d := Day(q.Expiration)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ForExpiration returns the rows expiring on the given date.
func (c Chain) ForExpiration(exp time.Time) Chain {
	exp = Day(exp)
	out := make(Chain, 0, len(c))
	for _, q := range c {
		if Day(q.Expiration).Equal(exp) {
			out = append(out, q)
		}
	}
	return out
}

// Strikes returns the unique strikes in the chain, ascending.
func (c Chain) Strikes() []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, q := range c {
		if _, ok := seen[q.Strike]; ok {
			continue
		}
		seen[q.Strike] = struct{}{}
		out = append(out, q.Strike)
	}
	sort.Float64s(out)
	return out
}

// Selection is the option chosen by the selector for a day's entry.
type Selection struct {
	Expiration time.Time  `json:"expiration"`
	Strike     float64    `json:"strike"`
	Kind       OptionKind `json:"kind"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	MidPrice   float64    `json:"mid_price"`
	Delta      *float64   `json:"delta,omitempty"`
	DTE        int        `json:"dte"`
}
