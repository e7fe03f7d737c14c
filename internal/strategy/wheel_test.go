package strategy

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorsadeh/wheel/internal/models"
	"github.com/dorsadeh/wheel/internal/portfolio"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestWheel(cash float64) (*Wheel, *portfolio.Ledger) {
	ledger := portfolio.NewLedger(cash)
	selector := NewSelector(SelectorConfig{DTETarget: 30, DTEMin: 7, DeltaTarget: f(0.20)})
	wheel := NewWheel(ledger, selector, WheelConfig{ContractsPerTrade: 1}, testLogger())
	return wheel, ledger
}

// chainAround builds a one-expiration chain bracketing the underlying with
// puts below and calls above.
func chainAround(exp time.Time, underlying float64) models.Chain {
	var chain models.Chain
	for i := 1; i <= 4; i++ {
		offset := float64(i * 5)
		putDelta := -0.10 * float64(i)
		callDelta := 0.10 * float64(i)
		chain = append(chain,
			putRow(exp, underlying-offset, f(putDelta), 2.0, 2.4),
			callRow(exp, underlying+offset, f(callDelta), 2.0, 2.4),
		)
	}
	return chain
}

func TestWheel_OpensPutFromInitialState(t *testing.T) {
	w, ledger := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	exp := trade.AddDate(0, 0, 30)

	events, err := w.ProcessDay(trade, 460, chainAround(exp, 460))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.EventSellPut, ev.Kind)
	assert.Equal(t, models.SellingPuts, ev.StateBefore)
	assert.Equal(t, models.SellingPuts, ev.StateAfter)

	sell := ev.Sell()
	require.NotNil(t, sell)
	// Target delta 0.20: the -0.20 row is underlying-10 = 450.
	assert.Equal(t, 450.0, sell.Strike)
	assert.Equal(t, 30, sell.DTE)
	assert.InDelta(t, 2.2, sell.Premium, 1e-9)

	assert.Len(t, ledger.ShortPuts(), 1)
	assert.Equal(t, models.SellingPuts, w.State())
}

func TestWheel_NoSecondPutWhileOneIsOpen(t *testing.T) {
	w, ledger := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	exp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(exp, 460))
	require.NoError(t, err)

	events, err := w.ProcessDay(trade.AddDate(0, 0, 1), 461, chainAround(exp, 461))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, ledger.ShortPuts(), 1)
}

func TestWheel_EmptyChainIsQuietDay(t *testing.T) {
	w, _ := newTestWheel(100_000)

	events, err := w.ProcessDay(date(2024, 1, 2), 460, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, models.SellingPuts, w.State())
}

func TestWheel_InsufficientCashSkipsEntry(t *testing.T) {
	// 450-strike put needs 45,000 of cash; 10,000 is not enough.
	w, ledger := newTestWheel(10_000)
	trade := date(2024, 1, 2)
	exp := trade.AddDate(0, 0, 30)

	events, err := w.ProcessDay(trade, 460, chainAround(exp, 460))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, ledger.HasOpenPositions())
}

func TestWheel_PutExpiresWorthless(t *testing.T) {
	w, ledger := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	exp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(exp, 460))
	require.NoError(t, err)

	// On expiration day the underlying is above the 450 strike: OTM.
	events, err := w.ProcessDay(exp, 455, chainAround(exp.AddDate(0, 0, 30), 455))
	require.NoError(t, err)
	require.Len(t, events, 2, "expiry event plus the next put")

	assert.Equal(t, models.EventPutExpired, events[0].Kind)
	expiry := events[0].Expiry()
	require.NotNil(t, expiry)
	assert.Equal(t, 450.0, expiry.Strike)
	assert.InDelta(t, 220.0, expiry.PnL, 1e-9)

	assert.Equal(t, models.EventSellPut, events[1].Kind)
	assert.Len(t, ledger.ShortPuts(), 1)
}

func TestWheel_AssignmentFlowThroughTheWheel(t *testing.T) {
	w, ledger := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	exp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(exp, 460))
	require.NoError(t, err)
	require.Len(t, ledger.ShortPuts(), 1)
	putStrike := ledger.ShortPuts()[0].Strike // 450

	// Underlying collapses below the strike by expiration: assignment.
	events, err := w.ProcessDay(exp, 430, chainAround(exp.AddDate(0, 0, 30), 430))
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assigned := events[0]
	assert.Equal(t, models.EventPutAssigned, assigned.Kind)
	assert.Equal(t, models.HoldingStock, assigned.StateAfter)

	detail := assigned.Assignment()
	require.NotNil(t, detail)
	assert.Equal(t, 100, detail.Shares)
	require.NotNil(t, detail.CostBasis)
	assert.InDelta(t, putStrike-2.2, *detail.CostBasis, 1e-9)

	assert.Equal(t, 100, ledger.Shares())

	// Same day: a covered call goes out, strike at or above cost basis.
	require.Len(t, events, 2)
	call := events[1]
	assert.Equal(t, models.EventSellCall, call.Kind)
	assert.Equal(t, models.SellingCalls, call.StateAfter)
	sell := call.Sell()
	require.NotNil(t, sell)
	assert.GreaterOrEqual(t, sell.Strike, *detail.CostBasis)
	assert.Equal(t, models.SellingCalls, w.State())
}

func TestWheel_CalledAwayResumesSellingPuts(t *testing.T) {
	w, ledger := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	putExp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(putExp, 460))
	require.NoError(t, err)

	// Assigned at 450, covered call sold same day.
	_, err = w.ProcessDay(putExp, 430, chainAround(putExp.AddDate(0, 0, 30), 430))
	require.NoError(t, err)
	require.Len(t, ledger.ShortCalls(), 1)
	callStrike := ledger.ShortCalls()[0].Strike
	callExp := ledger.ShortCalls()[0].Expiration

	// Underlying rips through the call strike: called away, back to puts.
	events, err := w.ProcessDay(callExp, callStrike+20, chainAround(callExp.AddDate(0, 0, 30), callStrike+20))
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, models.EventCallAssigned, events[0].Kind)
	assert.Equal(t, models.SellingPuts, events[0].StateAfter)
	assert.Equal(t, 0, ledger.Shares())
	assert.Nil(t, w.CostBasis())

	// And the wheel turns: a fresh put the same day.
	require.Len(t, events, 2)
	assert.Equal(t, models.EventSellPut, events[1].Kind)
	assert.Equal(t, models.SellingPuts, w.State())
}

func TestWheel_OTMCallExpiryKeepsStock(t *testing.T) {
	w, ledger := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	putExp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(putExp, 460))
	require.NoError(t, err)
	_, err = w.ProcessDay(putExp, 430, chainAround(putExp.AddDate(0, 0, 30), 430))
	require.NoError(t, err)
	require.Len(t, ledger.ShortCalls(), 1)
	callExp := ledger.ShortCalls()[0].Expiration

	// Underlying drifts: the call dies OTM, shares stay, a new call opens.
	events, err := w.ProcessDay(callExp, 431, chainAround(callExp.AddDate(0, 0, 30), 431))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, models.EventCallExpired, events[0].Kind)
	assert.Equal(t, models.HoldingStock, events[0].StateAfter)
	assert.Equal(t, models.EventSellCall, events[1].Kind)
	assert.Equal(t, 100, ledger.Shares())
	assert.Equal(t, models.SellingCalls, w.State())
}

func TestWheel_CallProtectionBandHoldsOff(t *testing.T) {
	ledger := portfolio.NewLedger(100_000)
	selector := NewSelector(SelectorConfig{DTETarget: 30, DTEMin: 7, DeltaTarget: f(0.20)})
	band := 5.0
	w := NewWheel(ledger, selector, WheelConfig{ContractsPerTrade: 1, CallProtectionBand: &band}, testLogger())

	trade := date(2024, 1, 2)
	putExp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(putExp, 460))
	require.NoError(t, err)

	// Assigned at 450; basis 447.8. Underlying at 430 is far below the
	// basis-minus-band threshold, so no call is sold.
	events, err := w.ProcessDay(putExp, 430, chainAround(putExp.AddDate(0, 0, 30), 430))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPutAssigned, events[0].Kind)
	assert.Empty(t, ledger.ShortCalls())

	// Once the underlying recovers into the band, calls resume.
	events, err = w.ProcessDay(putExp.AddDate(0, 0, 1), 446, chainAround(putExp.AddDate(0, 0, 31), 446))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSellCall, events[0].Kind)
}

func TestDeriveState(t *testing.T) {
	ledger := portfolio.NewLedger(100_000)
	assert.Equal(t, models.SellingPuts, DeriveState(ledger))

	// A short put alone does not change the state.
	_, err := ledger.OpenShortOption(models.Put, 450, date(2024, 2, 16), 1, 5, date(2024, 1, 2), 460, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, models.SellingPuts, DeriveState(ledger))

	_, err = ledger.BuyShares(100, 450, 0)
	require.NoError(t, err)
	assert.Equal(t, models.HoldingStock, DeriveState(ledger))

	_, err = ledger.OpenShortOption(models.Call, 470, date(2024, 2, 16), 1, 3, date(2024, 1, 2), 460, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, models.SellingCalls, DeriveState(ledger))
}

func TestWheel_SummaryCounts(t *testing.T) {
	w, _ := newTestWheel(100_000)
	trade := date(2024, 1, 2)
	exp := trade.AddDate(0, 0, 30)

	_, err := w.ProcessDay(trade, 460, chainAround(exp, 460))
	require.NoError(t, err)
	_, err = w.ProcessDay(exp, 455, chainAround(exp.AddDate(0, 0, 30), 455))
	require.NoError(t, err)

	s := w.Summarize()
	assert.Equal(t, 2, s.PutsSold)
	assert.Equal(t, 1, s.PutsExpiredOTM)
	assert.Equal(t, 0, s.CallsSold)
	assert.InDelta(t, 440.0, s.TotalPremium, 1e-9)
	assert.Equal(t, models.SellingPuts, s.FinalState)
}
