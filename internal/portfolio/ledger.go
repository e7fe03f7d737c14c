// Package portfolio implements the strategy's capital ledger: cash, shares,
// and open option positions, with all money movement funneled through it.
package portfolio

import (
	"fmt"
	"time"

	"github.com/dorsadeh/wheel/internal/models"
)

// Ledger owns the portfolio state for one backtest run. It is not safe for
// concurrent use; a run drives its ledger from a single goroutine.
//
// Positions live in an arena keyed by models.PositionID, assigned at open
// time. Every operation addresses positions by handle, so structurally equal
// positions never alias each other.
type Ledger struct {
	cash       float64
	shares     int
	multiplier int

	positions map[models.PositionID]*models.OptionPosition
	order     []models.PositionID // open handles in open order
	nextID    models.PositionID
}

// NewLedger creates a ledger with the given starting cash and the default
// 100-share contract multiplier.
func NewLedger(cash float64) *Ledger {
	return NewLedgerWithMultiplier(cash, models.SharesPerContract)
}

// NewLedgerWithMultiplier creates a ledger with an explicit contract
// multiplier.
func NewLedgerWithMultiplier(cash float64, multiplier int) *Ledger {
	return &Ledger{
		cash:       cash,
		multiplier: multiplier,
		positions:  make(map[models.PositionID]*models.OptionPosition),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 { return l.cash }

// Shares returns the current share count.
func (l *Ledger) Shares() int { return l.shares }

// Multiplier returns the contract multiplier.
func (l *Ledger) Multiplier() int { return l.multiplier }

// Deposit adds cash to the ledger.
func (l *Ledger) Deposit(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive, got %.2f", ErrInvalidOperation, amount)
	}
	l.cash += amount
	return nil
}

// Withdraw removes cash from the ledger.
func (l *Ledger) Withdraw(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive, got %.2f", ErrInvalidOperation, amount)
	}
	if amount > l.cash {
		return fmt.Errorf("%w: have %.2f, need %.2f", ErrInsufficientFunds, l.cash, amount)
	}
	l.cash -= amount
	return nil
}

// BuyShares buys shares of the underlying, returning the total cost.
func (l *Ledger) BuyShares(quantity int, price, commission float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOperation, quantity)
	}
	cost := float64(quantity)*price + commission
	if cost > l.cash {
		return 0, fmt.Errorf("%w: have %.2f, need %.2f", ErrInsufficientFunds, l.cash, cost)
	}
	l.cash -= cost
	l.shares += quantity
	return cost, nil
}

// SellShares sells shares of the underlying, returning the net proceeds.
func (l *Ledger) SellShares(quantity int, price, commission float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOperation, quantity)
	}
	if quantity > l.shares {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, l.shares, quantity)
	}
	proceeds := float64(quantity)*price - commission
	l.cash += proceeds
	l.shares -= quantity
	return proceeds, nil
}

// OpenShortOption sells an option to open, crediting the premium net of
// commission and recording the position. No feasibility check is performed
// here: the strategy verifies buying power (cash-secured puts) or share
// availability (covered calls) before calling.
func (l *Ledger) OpenShortOption(
	kind models.OptionKind,
	strike float64,
	expiration time.Time,
	quantity int,
	premiumPerShare float64,
	tradeDate time.Time,
	underlyingPrice float64,
	delta *float64,
	commission float64,
) (models.OptionPosition, error) {
	if quantity <= 0 {
		return models.OptionPosition{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOperation, quantity)
	}
	if strike <= 0 {
		return models.OptionPosition{}, fmt.Errorf("%w: strike must be positive, got %.2f", ErrInvalidOperation, strike)
	}
	if !kind.Valid() {
		return models.OptionPosition{}, fmt.Errorf("%w: unknown option kind %q", ErrInvalidOperation, kind)
	}

	l.cash += premiumPerShare*float64(quantity*l.multiplier) - commission

	l.nextID++
	pos := &models.OptionPosition{
		ID:           l.nextID,
		Kind:         kind,
		Side:         models.Short,
		Strike:       strike,
		Expiration:   models.Day(expiration),
		Quantity:     quantity,
		EntryPrice:   premiumPerShare,
		EntryDate:    models.Day(tradeDate),
		UnderlyingAt: underlyingPrice,
		DeltaAtEntry: delta,
		Multiplier:   l.multiplier,
	}
	l.positions[pos.ID] = pos
	l.order = append(l.order, pos.ID)
	return *pos, nil
}

// CloseOption closes a position at the given per-share price: buy-to-close
// for shorts, sell-to-close for longs. Returns the realized P&L.
func (l *Ledger) CloseOption(id models.PositionID, closePrice, commission float64) (float64, error) {
	pos, ok := l.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrPositionNotFound, id)
	}

	gross := closePrice * float64(pos.Shares())
	var pnl float64
	if pos.IsShort() {
		l.cash -= gross + commission
		pnl = (pos.EntryPrice-closePrice)*float64(pos.Shares()) - commission
	} else {
		l.cash += gross - commission
		pnl = (closePrice-pos.EntryPrice)*float64(pos.Shares()) - commission
	}

	l.remove(id)
	return pnl, nil
}

// ExpireWorthless removes a position that finished out of the money. No cash
// moves: short premium was booked at open. Returns the realized P&L.
func (l *Ledger) ExpireWorthless(id models.PositionID) (float64, error) {
	pos, ok := l.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrPositionNotFound, id)
	}

	pnl := pos.EntryPrice * float64(pos.Shares())
	if !pos.IsShort() {
		pnl = -pnl
	}

	l.remove(id)
	return pnl, nil
}

// ExercisePutAssignment handles assignment of a short put: buy the shares at
// strike. Returns the realized P&L, which nets the premium received against
// the intrinsic loss baked into the forced purchase.
func (l *Ledger) ExercisePutAssignment(id models.PositionID, underlyingPrice float64) (float64, error) {
	pos, ok := l.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrPositionNotFound, id)
	}
	if !pos.IsPut() || !pos.IsShort() {
		return 0, fmt.Errorf("%w: assignment requires a short put, got %s %s", ErrInvalidOperation, pos.Side, pos.Kind)
	}

	shares := pos.Shares()
	cost := pos.Strike * float64(shares)
	if cost > l.cash {
		return 0, fmt.Errorf("%w: assignment needs %.2f, have %.2f", ErrInsufficientFunds, cost, l.cash)
	}

	l.cash -= cost
	l.shares += shares

	intrinsicLoss := (pos.Strike - underlyingPrice) * float64(shares)
	pnl := pos.EntryPrice*float64(shares) - intrinsicLoss

	l.remove(id)
	return pnl, nil
}

// ExerciseCallAssignment handles assignment of a short call: sell the shares
// at strike. The upside above strike is forgone; the premium is kept.
func (l *Ledger) ExerciseCallAssignment(id models.PositionID, underlyingPrice float64) (float64, error) {
	pos, ok := l.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", ErrPositionNotFound, id)
	}
	if !pos.IsCall() || !pos.IsShort() {
		return 0, fmt.Errorf("%w: assignment requires a short call, got %s %s", ErrInvalidOperation, pos.Side, pos.Kind)
	}

	shares := pos.Shares()
	if shares > l.shares {
		return 0, fmt.Errorf("%w: assignment needs %d, have %d", ErrInsufficientShares, shares, l.shares)
	}

	l.cash += pos.Strike * float64(shares)
	l.shares -= shares

	pnl := pos.EntryPrice * float64(shares)

	l.remove(id)
	return pnl, nil
}

// Equity returns cash + marked stock value + marked option value. Shorts
// count as liabilities. When marks has no price for a position, its intrinsic
// value stands in for the mark. That understates extrinsic value for open
// short options and adds day-to-day noise near expiration; it is a known
// simplification, kept deliberately, not a pricing model.
func (l *Ledger) Equity(underlyingPrice float64, marks map[models.PositionID]float64) float64 {
	optionsValue := 0.0
	for _, id := range l.order {
		pos := l.positions[id]
		mark, ok := marks[id]
		if !ok {
			mark = pos.IntrinsicValue(underlyingPrice)
		}
		value := mark * float64(pos.Shares())
		if pos.IsShort() {
			optionsValue -= value
		} else {
			optionsValue += value
		}
	}
	return l.cash + float64(l.shares)*underlyingPrice + optionsValue
}

// BuyingPower returns cash minus the strike notional reserved against every
// open short put, floored at zero (cash-secured put convention).
func (l *Ledger) BuyingPower() float64 {
	reserved := 0.0
	for _, id := range l.order {
		pos := l.positions[id]
		if pos.IsPut() && pos.IsShort() {
			reserved += pos.Notional()
		}
	}
	bp := l.cash - reserved
	if bp < 0 {
		return 0
	}
	return bp
}

// OpenPositions returns copies of all open positions in open order.
func (l *Ledger) OpenPositions() []models.OptionPosition {
	out := make([]models.OptionPosition, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.positions[id])
	}
	return out
}

// ShortPuts returns copies of the open short put positions.
func (l *Ledger) ShortPuts() []models.OptionPosition {
	return l.filter(func(p *models.OptionPosition) bool { return p.IsPut() && p.IsShort() })
}

// ShortCalls returns copies of the open short call positions.
func (l *Ledger) ShortCalls() []models.OptionPosition {
	return l.filter(func(p *models.OptionPosition) bool { return p.IsCall() && p.IsShort() })
}

// HasOpenPositions reports whether any option positions are open.
func (l *Ledger) HasOpenPositions() bool {
	return len(l.order) > 0
}

func (l *Ledger) filter(keep func(*models.OptionPosition) bool) []models.OptionPosition {
	var out []models.OptionPosition
	for _, id := range l.order {
		if pos := l.positions[id]; keep(pos) {
			out = append(out, *pos)
		}
	}
	return out
}

func (l *Ledger) remove(id models.PositionID) {
	delete(l.positions, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}
