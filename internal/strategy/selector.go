// Package strategy implements the wheel: option selection and the state
// machine that drives one trading day at a time against the ledger.
package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/dorsadeh/wheel/internal/models"
)

// defaultDelta is assumed when no delta target is configured anywhere.
const defaultDelta = 0.20

// SelectorConfig holds the selection criteria. PutDelta and CallDelta
// override DeltaTarget per kind; nil means "fall back to DeltaTarget".
// OTMPct is only used when the chain carries no usable delta data; when nil
// it is derived from the effective delta (a ~0.20 delta sits roughly 5% OTM).
type SelectorConfig struct {
	DTETarget   int
	DTEMin      int
	DeltaTarget *float64
	PutDelta    *float64
	CallDelta   *float64
	OTMPct      *float64
}

// Selector chooses an expiration and strike from a day's option chain.
// Delta-based selection is preferred; percentage-OTM selection is the
// fallback when delta data is absent.
type Selector struct {
	dteTarget int
	dteMin    int
	putDelta  *float64
	callDelta *float64
	otmPct    float64
}

// NewSelector resolves the configured criteria into an immutable selector.
func NewSelector(cfg SelectorConfig) *Selector {
	s := &Selector{
		dteTarget: cfg.DTETarget,
		dteMin:    cfg.DTEMin,
		putDelta:  coalesce(cfg.PutDelta, cfg.DeltaTarget),
		callDelta: coalesce(cfg.CallDelta, cfg.DeltaTarget),
	}

	if cfg.OTMPct != nil {
		s.otmPct = *cfg.OTMPct
		return s
	}
	effective := defaultDelta
	if d := coalesce(cfg.DeltaTarget, coalesce(cfg.PutDelta, cfg.CallDelta)); d != nil {
		effective = *d
	}
	s.otmPct = effective * 0.25
	return s
}

// SelectExpiration picks the expiration closest to the target DTE among
// those at least dteMin days out. Ties go to the earlier date. Returns false
// if no expiration qualifies.
func (s *Selector) SelectExpiration(available []time.Time, tradeDate time.Time) (time.Time, bool) {
	candidates := make([]time.Time, 0, len(available))
	for _, exp := range available {
		if models.DTE(tradeDate, exp) >= s.dteMin {
			candidates = append(candidates, models.Day(exp))
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	best := candidates[0]
	bestDiff := abs(models.DTE(tradeDate, best) - s.dteTarget)
	for _, exp := range candidates[1:] {
		if diff := abs(models.DTE(tradeDate, exp) - s.dteTarget); diff < bestDiff {
			best = exp
			bestDiff = diff
		}
	}
	return best, true
}

// SelectStrikeByDelta picks the strike whose delta is closest to the signed
// target: -|target| for puts (strikes at or below the underlying), +|target|
// for calls (strikes at or above the underlying, and at or above cost basis
// when one is supplied). Returns false when no row carries a delta or no
// candidate survives the filters.
func (s *Selector) SelectStrikeByDelta(
	chain models.Chain,
	kind models.OptionKind,
	targetDelta float64,
	underlyingPrice float64,
	costBasis *float64,
) (float64, bool) {
	target := math.Abs(targetDelta)
	if kind == models.Put {
		target = -target
	}

	bestStrike := 0.0
	bestDiff := math.MaxFloat64
	found := false
	for _, q := range chain {
		if q.Delta == nil {
			continue
		}
		if kind == models.Put {
			if q.Strike > underlyingPrice {
				continue
			}
		} else {
			if q.Strike < underlyingPrice {
				continue
			}
			if costBasis != nil && q.Strike < *costBasis {
				continue
			}
		}
		if diff := math.Abs(*q.Delta - target); diff < bestDiff {
			bestDiff = diff
			bestStrike = q.Strike
			found = true
		}
	}
	return bestStrike, found
}

// SelectPutStrike is the OTM-percentage fallback for puts: closest strike at
// or below the underlying to underlying*(1-otmPct).
func (s *Selector) SelectPutStrike(underlyingPrice float64, strikes []float64) (float64, bool) {
	target := underlyingPrice * (1 - s.otmPct)
	return closestStrike(strikes, target, func(strike float64) bool {
		return strike <= underlyingPrice
	})
}

// SelectCallStrike is the OTM-percentage fallback for calls: closest strike
// at or above the underlying to underlying*(1+otmPct), with the target
// floored at cost basis when supplied.
func (s *Selector) SelectCallStrike(underlyingPrice float64, strikes []float64, costBasis *float64) (float64, bool) {
	target := underlyingPrice * (1 + s.otmPct)
	if costBasis != nil && *costBasis > target {
		target = *costBasis
	}
	return closestStrike(strikes, target, func(strike float64) bool {
		return strike >= underlyingPrice
	})
}

// SelectFromChain runs the full selection pipeline for one kind: expiration
// by DTE, strike by delta with the OTM fallback, fill price at the bid/ask
// midpoint. Returns nil when any stage finds no candidate.
func (s *Selector) SelectFromChain(
	chain models.Chain,
	kind models.OptionKind,
	underlyingPrice float64,
	tradeDate time.Time,
	costBasis *float64,
) *models.Selection {
	kindChain := chain.Filter(kind)
	if len(kindChain) == 0 {
		return nil
	}

	expiration, ok := s.SelectExpiration(kindChain.Expirations(), tradeDate)
	if !ok {
		return nil
	}
	expChain := kindChain.ForExpiration(expiration)

	targetDelta := s.putDelta
	if kind == models.Call {
		targetDelta = s.callDelta
	}

	strike := 0.0
	found := false
	if targetDelta != nil {
		strike, found = s.SelectStrikeByDelta(expChain, kind, *targetDelta, underlyingPrice, costBasis)
	}
	if !found {
		if kind == models.Put {
			strike, found = s.SelectPutStrike(underlyingPrice, expChain.Strikes())
		} else {
			strike, found = s.SelectCallStrike(underlyingPrice, expChain.Strikes(), costBasis)
		}
	}
	if !found {
		return nil
	}

	for _, q := range expChain {
		if q.Strike != strike {
			continue
		}
		return &models.Selection{
			Expiration: expiration,
			Strike:     strike,
			Kind:       kind,
			Bid:        q.Bid,
			Ask:        q.Ask,
			MidPrice:   q.Mid(),
			Delta:      q.Delta,
			DTE:        models.DTE(tradeDate, expiration),
		}
	}
	return nil
}

func closestStrike(strikes []float64, target float64, keep func(float64) bool) (float64, bool) {
	bestStrike := 0.0
	bestDiff := math.MaxFloat64
	found := false
	for _, strike := range strikes {
		if !keep(strike) {
			continue
		}
		if diff := math.Abs(strike - target); diff < bestDiff {
			bestDiff = diff
			bestStrike = strike
			found = true
		}
	}
	return bestStrike, found
}

func coalesce(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
