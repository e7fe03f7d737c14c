package backtest

import (
	"time"

	"github.com/dorsadeh/wheel/internal/models"
)

// Transaction is one row of the run's trade ledger, flattened from a wheel
// event for reporting and persistence.
type Transaction struct {
	Date            time.Time         `json:"date" csv:"date"`
	Kind            models.EventKind  `json:"kind" csv:"kind"`
	State           models.WheelState `json:"state" csv:"state"`
	Strike          float64           `json:"strike" csv:"strike"`
	Expiration      *time.Time        `json:"expiration,omitempty" csv:"-"`
	Contracts       int               `json:"contracts,omitempty" csv:"contracts"`
	Premium         float64           `json:"premium" csv:"premium"`
	PnL             float64           `json:"pnl" csv:"pnl"`
	UnderlyingPrice float64           `json:"underlying_price" csv:"underlying_price"`
	CashAfter       float64           `json:"cash_after" csv:"cash_after"`
	SharesAfter     int               `json:"shares_after" csv:"shares_after"`
}

// newTransaction flattens a wheel event, stamping the end-of-day cash and
// share balances.
func newTransaction(ev models.WheelEvent, cashAfter float64, sharesAfter int) Transaction {
	tx := Transaction{
		Date:        ev.Date,
		Kind:        ev.Kind,
		State:       ev.StateAfter,
		CashAfter:   cashAfter,
		SharesAfter: sharesAfter,
	}
	switch {
	case ev.Sell() != nil:
		d := ev.Sell()
		exp := d.Expiration
		tx.Strike = d.Strike
		tx.Expiration = &exp
		tx.Contracts = d.Contracts
		tx.Premium = d.Premium
		tx.UnderlyingPrice = d.UnderlyingPrice
	case ev.Assignment() != nil:
		d := ev.Assignment()
		tx.Strike = d.Strike
		tx.Premium = d.Premium
		tx.PnL = d.PnL
		tx.UnderlyingPrice = d.UnderlyingPrice
	case ev.Expiry() != nil:
		d := ev.Expiry()
		tx.Strike = d.Strike
		tx.Premium = d.Premium
		tx.PnL = d.PnL
		tx.UnderlyingPrice = d.UnderlyingPrice
	}
	return tx
}
