package strategy

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dorsadeh/wheel/internal/models"
	"github.com/dorsadeh/wheel/internal/portfolio"
)

// WheelConfig holds the strategy parameters outside of option selection.
type WheelConfig struct {
	ContractsPerTrade     int
	CommissionPerContract float64
	// CallProtectionBand, when non-nil, gates covered-call entries after an
	// assignment: calls are only sold once the underlying has recovered to
	// within this many dollars of the cost basis. Strikes are floored at
	// cost basis regardless.
	CallProtectionBand *float64
}

// Wheel is the strategy state machine. It sells cash-secured puts; if
// assigned it holds the shares and sells covered calls; if called away it
// resumes selling puts.
//
// A Wheel owns its ledger exclusively for the duration of a run and must be
// driven from a single goroutine, one trading day at a time in date order.
type Wheel struct {
	ledger   *portfolio.Ledger
	selector *Selector
	cfg      WheelConfig
	log      *logrus.Logger

	state     models.WheelState
	costBasis *float64 // per-share basis while holding assigned stock
	events    []models.WheelEvent
}

// NewWheel creates a wheel strategy over the given ledger and selector.
func NewWheel(ledger *portfolio.Ledger, selector *Selector, cfg WheelConfig, log *logrus.Logger) *Wheel {
	if cfg.ContractsPerTrade <= 0 {
		cfg.ContractsPerTrade = 1
	}
	return &Wheel{
		ledger:   ledger,
		selector: selector,
		cfg:      cfg,
		log:      log,
		state:    models.SellingPuts,
	}
}

// State returns the current wheel state.
func (w *Wheel) State() models.WheelState { return w.state }

// CostBasis returns the per-share cost basis while holding assigned stock,
// or nil when no basis applies.
func (w *Wheel) CostBasis() *float64 { return w.costBasis }

// Events returns a copy of every event recorded so far.
func (w *Wheel) Events() []models.WheelEvent {
	out := make([]models.WheelEvent, len(w.events))
	copy(out, w.events)
	return out
}

// ProcessDay runs one trading day: resolve expirations against the ledger,
// re-derive the state from holdings, and open a new position if the state
// calls for one. Returns the day's events.
//
// Recoverable conditions (no eligible option, insufficient buying power or
// shares) are silent no-ops. Errors returned here are structural ledger
// violations and the caller must abort the run.
func (w *Wheel) ProcessDay(tradeDate time.Time, underlyingPrice float64, chain models.Chain) ([]models.WheelEvent, error) {
	dayEvents, err := w.resolveExpirations(tradeDate, underlyingPrice)
	if err != nil {
		return dayEvents, err
	}

	// The derived state is authoritative: state is a view over holdings,
	// not independently tracked memory.
	w.state = DeriveState(w.ledger)

	switch w.state {
	case models.SellingPuts:
		if len(w.ledger.ShortPuts()) == 0 {
			if ev := w.sellPut(tradeDate, underlyingPrice, chain); ev != nil {
				dayEvents = append(dayEvents, *ev)
			}
		}
	case models.HoldingStock:
		if len(w.ledger.ShortCalls()) == 0 {
			if ev := w.sellCall(tradeDate, underlyingPrice, chain); ev != nil {
				dayEvents = append(dayEvents, *ev)
			}
		}
	case models.SellingCalls:
		// Already covered; nothing to open.
	}

	return dayEvents, nil
}

// DeriveState computes the wheel state purely from ledger holdings.
func DeriveState(l *portfolio.Ledger) models.WheelState {
	if l.Shares() > 0 {
		if len(l.ShortCalls()) > 0 {
			return models.SellingCalls
		}
		return models.HoldingStock
	}
	return models.SellingPuts
}

func (w *Wheel) resolveExpirations(tradeDate time.Time, underlyingPrice float64) ([]models.WheelEvent, error) {
	var events []models.WheelEvent

	for _, pos := range w.ledger.OpenPositions() {
		if !pos.IsExpired(tradeDate) {
			continue
		}
		stateBefore := w.state

		if pos.IsITM(underlyingPrice) {
			if pos.IsPut() {
				pnl, err := w.ledger.ExercisePutAssignment(pos.ID, underlyingPrice)
				if err != nil {
					return events, fmt.Errorf("put assignment %s: %w", pos.Describe(), err)
				}
				basis := pos.Strike - pos.EntryPrice
				w.costBasis = &basis
				w.state = models.HoldingStock

				events = append(events, w.record(tradeDate, models.EventPutAssigned, stateBefore, models.AssignmentDetail{
					Strike:          pos.Strike,
					UnderlyingPrice: underlyingPrice,
					Shares:          pos.Shares(),
					CostBasis:       w.costBasis,
					Premium:         pos.EntryPrice,
					PnL:             pnl,
				}))
				w.log.WithFields(logrus.Fields{
					"date":       tradeDate.Format("2006-01-02"),
					"strike":     pos.Strike,
					"shares":     pos.Shares(),
					"cost_basis": basis,
					"pnl":        pnl,
				}).Info("put assigned")
			} else {
				pnl, err := w.ledger.ExerciseCallAssignment(pos.ID, underlyingPrice)
				if err != nil {
					return events, fmt.Errorf("call assignment %s: %w", pos.Describe(), err)
				}
				w.costBasis = nil
				w.state = models.SellingPuts

				events = append(events, w.record(tradeDate, models.EventCallAssigned, stateBefore, models.AssignmentDetail{
					Strike:          pos.Strike,
					UnderlyingPrice: underlyingPrice,
					Shares:          pos.Shares(),
					Premium:         pos.EntryPrice,
					PnL:             pnl,
				}))
				w.log.WithFields(logrus.Fields{
					"date":   tradeDate.Format("2006-01-02"),
					"strike": pos.Strike,
					"shares": pos.Shares(),
					"pnl":    pnl,
				}).Info("called away")
			}
			continue
		}

		pnl, err := w.ledger.ExpireWorthless(pos.ID)
		if err != nil {
			return events, fmt.Errorf("expiring %s: %w", pos.Describe(), err)
		}

		kind := models.EventPutExpired
		if pos.IsCall() {
			kind = models.EventCallExpired
			// Shares are still held after an OTM call.
			w.state = models.HoldingStock
		}
		events = append(events, w.record(tradeDate, kind, stateBefore, models.ExpiryDetail{
			Strike:          pos.Strike,
			UnderlyingPrice: underlyingPrice,
			Premium:         pos.EntryPrice,
			PnL:             pnl,
		}))
		w.log.WithFields(logrus.Fields{
			"date":   tradeDate.Format("2006-01-02"),
			"strike": pos.Strike,
			"pnl":    pnl,
		}).Info("expired worthless")
	}

	return events, nil
}

func (w *Wheel) sellPut(tradeDate time.Time, underlyingPrice float64, chain models.Chain) *models.WheelEvent {
	sel := w.selector.SelectFromChain(chain, models.Put, underlyingPrice, tradeDate, nil)
	if sel == nil {
		w.log.WithField("date", tradeDate.Format("2006-01-02")).Debug("no eligible put today")
		return nil
	}

	// Cash-secured: the full strike notional must be available.
	required := sel.Strike * float64(w.cfg.ContractsPerTrade*w.ledger.Multiplier())
	if w.ledger.Cash() < required {
		w.log.WithFields(logrus.Fields{
			"date":     tradeDate.Format("2006-01-02"),
			"required": required,
			"cash":     w.ledger.Cash(),
		}).Debug("insufficient cash for cash-secured put")
		return nil
	}

	commission := w.cfg.CommissionPerContract * float64(w.cfg.ContractsPerTrade)
	_, err := w.ledger.OpenShortOption(
		models.Put, sel.Strike, sel.Expiration, w.cfg.ContractsPerTrade,
		sel.MidPrice, tradeDate, underlyingPrice, sel.Delta, commission,
	)
	if err != nil {
		// Unreachable with validated selector output; treat as a skipped day.
		w.log.WithError(err).Warn("put entry rejected by ledger")
		return nil
	}

	ev := w.record(tradeDate, models.EventSellPut, models.SellingPuts, models.SellDetail{
		Strike:          sel.Strike,
		Expiration:      sel.Expiration,
		Premium:         sel.MidPrice,
		Delta:           sel.Delta,
		DTE:             sel.DTE,
		UnderlyingPrice: underlyingPrice,
		Contracts:       w.cfg.ContractsPerTrade,
		Commission:      commission,
	})
	w.log.WithFields(logrus.Fields{
		"date":    tradeDate.Format("2006-01-02"),
		"strike":  sel.Strike,
		"premium": sel.MidPrice,
		"dte":     sel.DTE,
	}).Info("sold put")
	return &ev
}

func (w *Wheel) sellCall(tradeDate time.Time, underlyingPrice float64, chain models.Chain) *models.WheelEvent {
	if w.cfg.CallProtectionBand != nil && w.costBasis != nil {
		if underlyingPrice < *w.costBasis-*w.cfg.CallProtectionBand {
			w.log.WithFields(logrus.Fields{
				"date":       tradeDate.Format("2006-01-02"),
				"underlying": underlyingPrice,
				"cost_basis": *w.costBasis,
			}).Debug("underlying too far below cost basis, holding off on calls")
			return nil
		}
	}

	sel := w.selector.SelectFromChain(chain, models.Call, underlyingPrice, tradeDate, w.costBasis)
	if sel == nil {
		w.log.WithField("date", tradeDate.Format("2006-01-02")).Debug("no eligible call today")
		return nil
	}

	sharesNeeded := w.cfg.ContractsPerTrade * w.ledger.Multiplier()
	if w.ledger.Shares() < sharesNeeded {
		return nil
	}

	stateBefore := w.state
	commission := w.cfg.CommissionPerContract * float64(w.cfg.ContractsPerTrade)
	_, err := w.ledger.OpenShortOption(
		models.Call, sel.Strike, sel.Expiration, w.cfg.ContractsPerTrade,
		sel.MidPrice, tradeDate, underlyingPrice, sel.Delta, commission,
	)
	if err != nil {
		w.log.WithError(err).Warn("call entry rejected by ledger")
		return nil
	}

	// Covered as of now; no waiting for tomorrow's refresh.
	w.state = models.SellingCalls

	ev := models.WheelEvent{
		Date:        models.Day(tradeDate),
		Kind:        models.EventSellCall,
		StateBefore: stateBefore,
		StateAfter:  w.state,
		Detail: models.SellDetail{
			Strike:          sel.Strike,
			Expiration:      sel.Expiration,
			Premium:         sel.MidPrice,
			Delta:           sel.Delta,
			DTE:             sel.DTE,
			UnderlyingPrice: underlyingPrice,
			Contracts:       w.cfg.ContractsPerTrade,
			Commission:      commission,
			CostBasis:       w.costBasis,
		},
	}
	w.events = append(w.events, ev)
	w.log.WithFields(logrus.Fields{
		"date":    tradeDate.Format("2006-01-02"),
		"strike":  sel.Strike,
		"premium": sel.MidPrice,
		"dte":     sel.DTE,
	}).Info("sold covered call")
	return &ev
}

func (w *Wheel) record(tradeDate time.Time, kind models.EventKind, stateBefore models.WheelState, detail models.EventDetail) models.WheelEvent {
	ev := models.WheelEvent{
		Date:        models.Day(tradeDate),
		Kind:        kind,
		StateBefore: stateBefore,
		StateAfter:  w.state,
		Detail:      detail,
	}
	w.events = append(w.events, ev)
	return ev
}

// Summary aggregates the run's events into headline counts.
type Summary struct {
	PutsSold         int               `json:"puts_sold"`
	CallsSold        int               `json:"calls_sold"`
	PutAssignments   int               `json:"put_assignments"`
	CallAssignments  int               `json:"call_assignments"`
	PutsExpiredOTM   int               `json:"puts_expired_otm"`
	CallsExpiredOTM  int               `json:"calls_expired_otm"`
	PremiumFromPuts  float64           `json:"premium_from_puts"`
	PremiumFromCalls float64           `json:"premium_from_calls"`
	TotalPremium     float64           `json:"total_premium"`
	FinalState       models.WheelState `json:"final_state"`
}

// Summarize tallies the events recorded so far.
func (w *Wheel) Summarize() Summary {
	s := Summary{FinalState: w.state}
	for _, ev := range w.events {
		switch ev.Kind {
		case models.EventSellPut:
			s.PutsSold++
			if d := ev.Sell(); d != nil {
				s.PremiumFromPuts += d.Premium * float64(d.Contracts*w.ledger.Multiplier())
			}
		case models.EventSellCall:
			s.CallsSold++
			if d := ev.Sell(); d != nil {
				s.PremiumFromCalls += d.Premium * float64(d.Contracts*w.ledger.Multiplier())
			}
		case models.EventPutAssigned:
			s.PutAssignments++
		case models.EventCallAssigned:
			s.CallAssignments++
		case models.EventPutExpired:
			s.PutsExpiredOTM++
		case models.EventCallExpired:
			s.CallsExpiredOTM++
		}
	}
	s.TotalPremium = s.PremiumFromPuts + s.PremiumFromCalls
	return s
}
