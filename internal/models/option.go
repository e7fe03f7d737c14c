// Package models provides the data structures shared by the wheel engine:
// option positions, chain quotes, strategy states, and events.
package models

import (
	"fmt"
	"time"
)

// SharesPerContract is the default contract multiplier for US equity options.
const SharesPerContract = 100

// OptionKind identifies a put or call contract.
type OptionKind string

const (
	// Put is a put option.
	Put OptionKind = "put"
	// Call is a call option.
	Call OptionKind = "call"
)

// Valid returns true if the OptionKind is one of the defined constants.
func (k OptionKind) Valid() bool {
	return k == Put || k == Call
}

// PositionSide identifies whether a position is long or short.
type PositionSide string

const (
	// Long means the contract was bought to open.
	Long PositionSide = "long"
	// Short means the contract was sold to open. The wheel only ever
	// opens short positions.
	Short PositionSide = "short"
)

// PositionID is an opaque handle assigned by the ledger when a position is
// opened. All ledger operations address positions by handle, so two
// structurally identical positions (same strike, same expiration, opened on
// different days) never collide.
type PositionID int64

// OptionPosition is an open option contract held by the strategy.
//
// Expirations and entry dates are calendar dates normalized to UTC midnight;
// use Day to normalize before comparing.
type OptionPosition struct {
	ID             PositionID   `json:"id"`
	Kind           OptionKind   `json:"kind"`
	Side           PositionSide `json:"side"`
	Strike         float64      `json:"strike"`
	Expiration     time.Time    `json:"expiration"`
	Quantity       int          `json:"quantity"`
	EntryPrice     float64      `json:"entry_price"` // premium per share at entry
	EntryDate      time.Time    `json:"entry_date"`
	UnderlyingAt   float64      `json:"underlying_at_entry"`
	DeltaAtEntry   *float64     `json:"delta_at_entry,omitempty"`
	Multiplier     int          `json:"multiplier"`
}

// IsShort returns true for short positions.
func (p *OptionPosition) IsShort() bool { return p.Side == Short }

// IsPut returns true for put positions.
func (p *OptionPosition) IsPut() bool { return p.Kind == Put }

// IsCall returns true for call positions.
func (p *OptionPosition) IsCall() bool { return p.Kind == Call }

// Shares returns the share count the position controls.
func (p *OptionPosition) Shares() int {
	return p.Quantity * p.Multiplier
}

// Notional returns strike * quantity * multiplier, the cash reserved for a
// cash-secured short put.
func (p *OptionPosition) Notional() float64 {
	return p.Strike * float64(p.Shares())
}

// IsExpired reports whether the position's expiration is on or before the
// given trading day.
func (p *OptionPosition) IsExpired(day time.Time) bool {
	return !Day(day).Before(Day(p.Expiration))
}

// IsITM reports whether the option is in the money at the given underlying
// price: puts below strike, calls above strike.
func (p *OptionPosition) IsITM(underlying float64) bool {
	if p.IsPut() {
		return underlying < p.Strike
	}
	return underlying > p.Strike
}

// IntrinsicValue returns the per-share payoff if exercised at the given
// underlying price, floored at zero.
func (p *OptionPosition) IntrinsicValue(underlying float64) float64 {
	var v float64
	if p.IsPut() {
		v = p.Strike - underlying
	} else {
		v = underlying - p.Strike
	}
	if v < 0 {
		return 0
	}
	return v
}

// Describe returns a short human-readable instrument description,
// e.g. "PUT $450 2024-02-16".
func (p *OptionPosition) Describe() string {
	kind := "PUT"
	if p.IsCall() {
		kind = "CALL"
	}
	return fmt.Sprintf("%s $%.0f %s", kind, p.Strike, p.Expiration.Format("2006-01-02"))
}

// Day normalizes t to a calendar date: UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DTE returns whole days between two calendar dates.
func DTE(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}
