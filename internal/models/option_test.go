package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDayTruncatesToUTCMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ts := time.Date(2024, 1, 2, 16, 30, 12, 0, loc)
	got := Day(ts)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, 2, got.Day())
}

func TestDTE(t *testing.T) {
	assert.Equal(t, 31, DTE(day(2024, 1, 2), day(2024, 2, 2)))
	assert.Equal(t, 0, DTE(day(2024, 1, 2), day(2024, 1, 2)))
	assert.Equal(t, -1, DTE(day(2024, 1, 2), day(2024, 1, 1)))
}

func TestOptionKindValid(t *testing.T) {
	assert.True(t, Put.Valid())
	assert.True(t, Call.Valid())
	assert.False(t, OptionKind("straddle").Valid())
	assert.False(t, OptionKind("").Valid())
}

func shortPut(strike float64, exp time.Time) OptionPosition {
	return OptionPosition{
		ID:         1,
		Kind:       Put,
		Side:       Short,
		Strike:     strike,
		Expiration: exp,
		Quantity:   1,
		EntryPrice: 2.5,
		Multiplier: SharesPerContract,
	}
}

func TestPositionMoneyness(t *testing.T) {
	exp := day(2024, 2, 2)
	put := shortPut(450, exp)

	assert.True(t, put.IsITM(445))
	assert.False(t, put.IsITM(450))
	assert.False(t, put.IsITM(455))

	call := put
	call.Kind = Call
	assert.True(t, call.IsITM(455))
	assert.False(t, call.IsITM(450))
	assert.False(t, call.IsITM(445))
}

func TestPositionIntrinsicValue(t *testing.T) {
	put := shortPut(450, day(2024, 2, 2))
	assert.InDelta(t, 5.0, put.IntrinsicValue(445), 1e-9)
	assert.Zero(t, put.IntrinsicValue(455))

	call := put
	call.Kind = Call
	assert.InDelta(t, 5.0, call.IntrinsicValue(455), 1e-9)
	assert.Zero(t, call.IntrinsicValue(445))
}

func TestPositionExpiry(t *testing.T) {
	exp := day(2024, 2, 2)
	put := shortPut(450, exp)

	assert.False(t, put.IsExpired(day(2024, 2, 1)))
	assert.True(t, put.IsExpired(exp))
	assert.True(t, put.IsExpired(day(2024, 2, 5)))
}

func TestPositionSharesAndNotional(t *testing.T) {
	put := shortPut(450, day(2024, 2, 2))
	put.Quantity = 2
	assert.Equal(t, 200, put.Shares())
	assert.InDelta(t, 90_000, put.Notional(), 1e-9)
}

func TestChainFilterAndExpirations(t *testing.T) {
	exp1, exp2 := day(2024, 2, 2), day(2024, 2, 9)
	chain := Chain{
		{Kind: Put, Strike: 450, Expiration: exp2},
		{Kind: Call, Strike: 455, Expiration: exp1},
		{Kind: Put, Strike: 445, Expiration: exp1},
	}

	puts := chain.Filter(Put)
	assert.Len(t, puts, 2)

	exps := chain.Expirations()
	require.Len(t, exps, 2)
	assert.Equal(t, exp1, exps[0])
	assert.Equal(t, exp2, exps[1])

	forExp := chain.ForExpiration(exp1)
	assert.Len(t, forExp, 2)

	strikes := chain.Strikes()
	assert.Equal(t, []float64{445, 450, 455}, strikes)
}

func TestQuoteMid(t *testing.T) {
	q := OptionQuote{Bid: 4.0, Ask: 4.4}
	assert.InDelta(t, 4.2, q.Mid(), 1e-9)
}
