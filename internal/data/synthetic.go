package data

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/dorsadeh/wheel/internal/models"
	"github.com/dorsadeh/wheel/internal/util"
)

// SyntheticProvider generates a deterministic random-walk underlying and a
// plausible option chain around it. It exists for offline runs and tests;
// the same seed always produces the same market.
type SyntheticProvider struct {
	start      time.Time
	end        time.Time
	startPrice float64
	seed       int64

	once  sync.Once
	bars  []Bar
	chain []models.OptionQuote
}

// NewSyntheticProvider builds a provider covering [start, end] business days
// with the underlying starting at startPrice.
func NewSyntheticProvider(start, end time.Time, startPrice float64, seed int64) *SyntheticProvider {
	return &SyntheticProvider{
		start:      models.Day(start),
		end:        models.Day(end),
		startPrice: startPrice,
		seed:       seed,
	}
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

// DailyBars returns the generated bars within [start, end], inclusive.
func (p *SyntheticProvider) DailyBars(_ context.Context, _ string, start, end time.Time) ([]Bar, error) {
	p.generate()
	start, end = models.Day(start), models.Day(end)

	out := make([]Bar, 0, len(p.bars))
	for _, b := range p.bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// OptionsHistory returns the generated chain history for the whole window.
func (p *SyntheticProvider) OptionsHistory(_ context.Context, _ string) (*ChainHistory, error) {
	p.generate()
	if len(p.chain) == 0 {
		return nil, ErrNoData
	}
	return NewChainHistory(p.chain), nil
}

func (p *SyntheticProvider) generate() {
	p.once.Do(func() {
		rng := rand.New(rand.NewSource(p.seed))
		p.bars = p.walkBars(rng)
		for _, b := range p.bars {
			p.chain = append(p.chain, p.chainForDay(b)...)
		}
	})
}

// walkBars produces a geometric random walk over business days, 0.01% daily
// drift and 1.5% daily volatility.
func (p *SyntheticProvider) walkBars(rng *rand.Rand) []Bar {
	var bars []Bar
	price := p.startPrice
	for d := p.start; !d.After(p.end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		ret := 0.0001 + 0.015*rng.NormFloat64()
		open := price
		price = price * math.Exp(ret)
		high := math.Max(open, price) * (1 + 0.004*rng.Float64())
		low := math.Min(open, price) * (1 - 0.004*rng.Float64())
		bars = append(bars, Bar{
			Date:   d,
			Open:   util.RoundToCents(open),
			High:   util.RoundToCents(high),
			Low:    util.RoundToCents(low),
			Close:  util.RoundToCents(price),
			Volume: 1_000_000 + rng.Int63n(9_000_000),
		})
	}
	return bars
}

// chainForDay builds puts and calls on the next four weekly expirations,
// strikes in $5 steps within 15% of spot. Delta decays exponentially with
// distance from spot, so the selector sees a realistic surface.
func (p *SyntheticProvider) chainForDay(bar Bar) []models.OptionQuote {
	spot := bar.Close
	var rows []models.OptionQuote

	for _, exp := range nextFridays(bar.Date, 4) {
		dte := models.DTE(bar.Date, exp)
		if dte <= 0 {
			continue
		}
		timeScale := math.Sqrt(float64(dte) / 30.0)

		lo := 5 * math.Floor(spot*0.85/5)
		hi := 5 * math.Ceil(spot*1.15/5)
		for strike := lo; strike <= hi; strike += 5 {
			distance := math.Abs(strike - spot)
			decay := math.Exp(-distance * 8 / spot)

			putDelta := -0.5 * decay
			callDelta := 0.5 * decay
			if strike < spot {
				callDelta = 1 - 0.5*decay
			} else if strike > spot {
				putDelta = -(1 - 0.5*decay)
			}
			// Clamp to the conventional range.
			putDelta = math.Max(-0.99, math.Min(-0.01, putDelta))
			callDelta = math.Min(0.99, math.Max(0.01, callDelta))

			extrinsic := spot * 0.012 * decay * timeScale
			putMid := math.Max(strike-spot, 0) + extrinsic
			callMid := math.Max(spot-strike, 0) + extrinsic
			spread := math.Max(0.02, extrinsic*0.1)

			rows = append(rows,
				quote(bar.Date, exp, models.Put, strike, putMid, spread, putDelta),
				quote(bar.Date, exp, models.Call, strike, callMid, spread, callDelta),
			)
		}
	}
	return rows
}

func quote(day, exp time.Time, kind models.OptionKind, strike, mid, spread, delta float64) models.OptionQuote {
	d := delta
	return models.OptionQuote{
		TradeDate:  day,
		Expiration: exp,
		Kind:       kind,
		Strike:     strike,
		Bid:        util.RoundToCents(math.Max(0, mid-spread/2)),
		Ask:        util.RoundToCents(mid + spread/2),
		Delta:      &d,
	}
}

// nextFridays returns the next n Fridays strictly after day.
func nextFridays(day time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := day.AddDate(0, 0, 1)
	for len(out) < n {
		if d.Weekday() == time.Friday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}
