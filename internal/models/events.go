package models

import "time"

// WheelState is the current phase of the wheel strategy.
type WheelState string

const (
	// SellingPuts means no shares are held; the strategy sells
	// cash-secured puts. This is the initial state.
	SellingPuts WheelState = "selling_puts"
	// HoldingStock means shares are held with no short call open.
	HoldingStock WheelState = "holding_stock"
	// SellingCalls means shares are held and a covered call is open.
	SellingCalls WheelState = "selling_calls"
)

// EventKind identifies the action recorded by a WheelEvent.
type EventKind string

const (
	EventSellPut      EventKind = "sell_put"
	EventSellCall     EventKind = "sell_call"
	EventPutExpired   EventKind = "put_expired"
	EventCallExpired  EventKind = "call_expired"
	EventPutAssigned  EventKind = "put_assigned"
	EventCallAssigned EventKind = "call_assigned"
)

// EventDetail is the kind-specific payload of a WheelEvent. Exactly one of
// SellDetail, AssignmentDetail, or ExpiryDetail, matching the event kind.
type EventDetail interface {
	eventDetail()
}

// SellDetail is the payload for sell_put and sell_call events.
type SellDetail struct {
	Strike          float64   `json:"strike"`
	Expiration      time.Time `json:"expiration"`
	Premium         float64   `json:"premium"` // per share, filled at mid
	Delta           *float64  `json:"delta,omitempty"`
	DTE             int       `json:"dte"`
	UnderlyingPrice float64   `json:"underlying_price"`
	Contracts       int       `json:"contracts"`
	Commission      float64   `json:"commission"`
	CostBasis       *float64  `json:"cost_basis,omitempty"` // covered calls only
}

func (SellDetail) eventDetail() {}

// AssignmentDetail is the payload for put_assigned and call_assigned events.
type AssignmentDetail struct {
	Strike          float64  `json:"strike"`
	UnderlyingPrice float64  `json:"underlying_price"`
	Shares          int      `json:"shares"`
	CostBasis       *float64 `json:"cost_basis,omitempty"` // put assignments only
	Premium         float64  `json:"premium"`              // per share, received at entry
	PnL             float64  `json:"pnl"`
}

func (AssignmentDetail) eventDetail() {}

// ExpiryDetail is the payload for put_expired and call_expired events.
type ExpiryDetail struct {
	Strike          float64 `json:"strike"`
	UnderlyingPrice float64 `json:"underlying_price"`
	Premium         float64 `json:"premium"` // per share, kept in full
	PnL             float64 `json:"pnl"`
}

func (ExpiryDetail) eventDetail() {}

// WheelEvent is an immutable record of one action taken on one trading day.
type WheelEvent struct {
	Date        time.Time   `json:"date"`
	Kind        EventKind   `json:"kind"`
	StateBefore WheelState  `json:"state_before"`
	StateAfter  WheelState  `json:"state_after"`
	Detail      EventDetail `json:"detail"`
}

// Sell returns the sell payload, or nil if the event is not a sell.
func (e *WheelEvent) Sell() *SellDetail {
	if d, ok := e.Detail.(SellDetail); ok {
		return &d
	}
	return nil
}

// Assignment returns the assignment payload, or nil if the event is not an
// assignment.
func (e *WheelEvent) Assignment() *AssignmentDetail {
	if d, ok := e.Detail.(AssignmentDetail); ok {
		return &d
	}
	return nil
}

// Expiry returns the expiration payload, or nil if the event is not an
// expiration.
func (e *WheelEvent) Expiry() *ExpiryDetail {
	if d, ok := e.Detail.(ExpiryDetail); ok {
		return &d
	}
	return nil
}
