package history

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorsadeh/wheel/internal/analytics"
	"github.com/dorsadeh/wheel/internal/backtest"
	"github.com/dorsadeh/wheel/internal/models"
	"github.com/dorsadeh/wheel/internal/strategy"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := Open(filepath.Join(t.TempDir(), "history.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(ticker string, finalEquity float64) *backtest.Result {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		RunID:          uuid.NewString(),
		Ticker:         ticker,
		Start:          start,
		End:            end,
		InitialCapital: 100_000,
		FinalEquity:    finalEquity,
		TradingDays:    124,
		Equity: backtest.EquityCurve{
			{Date: start, Equity: 100_000},
			{Date: end, Equity: finalEquity},
		},
		Transactions: []backtest.Transaction{
			{Date: start, Kind: models.EventSellPut, Strike: 450, Premium: 4.2, Contracts: 1},
		},
		Summary: strategy.Summary{
			PutsSold:       5,
			CallsSold:      2,
			PutAssignments: 1,
			FinalState:     models.SellingPuts,
		},
		CompletedAt: time.Now().UTC(),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := testStore(t)
	res := sampleResult("SPY", 108_000)
	m := analytics.Compute(res, 0)

	require.NoError(t, s.Save(res, m, nil))

	rec, stored, err := s.Get(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, rec.ID)
	assert.Equal(t, "SPY", rec.Ticker)
	assert.Equal(t, 108_000.0, rec.FinalEquity)
	assert.InDelta(t, 0.08, rec.TotalReturn, 1e-9)
	assert.Equal(t, 5, rec.PutsSold)
	assert.Equal(t, 1, rec.Assignments)
	assert.Equal(t, string(models.SellingPuts), rec.FinalState)

	require.NotNil(t, stored)
	assert.Equal(t, res.RunID, stored.RunID)
	assert.Len(t, stored.Equity, 2)
	assert.Len(t, stored.Transactions, 1)
	assert.Equal(t, res.Summary, stored.Summary)
}

func TestGetUnknownRun(t *testing.T) {
	s := testStore(t)
	_, _, err := s.Get("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := testStore(t)

	old := sampleResult("SPY", 101_000)
	old.CompletedAt = time.Now().UTC().Add(-time.Hour)
	recent := sampleResult("QQQ", 109_000)

	require.NoError(t, s.Save(old, analytics.Compute(old, 0), nil))
	require.NoError(t, s.Save(recent, analytics.Compute(recent, 0), nil))

	recs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, recent.RunID, recs[0].ID)
	assert.Equal(t, old.RunID, recs[1].ID)

	limited, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, recent.RunID, limited[0].ID)
}

func TestListByTicker(t *testing.T) {
	s := testStore(t)
	spy := sampleResult("SPY", 104_000)
	qqq := sampleResult("QQQ", 96_000)
	require.NoError(t, s.Save(spy, analytics.Compute(spy, 0), nil))
	require.NoError(t, s.Save(qqq, analytics.Compute(qqq, 0), nil))

	recs, err := s.ListByTicker("SPY", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, spy.RunID, recs[0].ID)
}

func TestBestPicksHighestReturn(t *testing.T) {
	s := testStore(t)

	_, err := s.Best("", "")
	assert.ErrorIs(t, err, ErrRunNotFound)

	low := sampleResult("SPY", 102_000)
	high := sampleResult("SPY", 115_000)
	require.NoError(t, s.Save(low, analytics.Compute(low, 0), nil))
	require.NoError(t, s.Save(high, analytics.Compute(high, 0), nil))

	best, err := s.Best("", "")
	require.NoError(t, err)
	assert.Equal(t, high.RunID, best.ID)

	best, err = s.Best("final_equity", "")
	require.NoError(t, err)
	assert.Equal(t, high.RunID, best.ID)

	_, err = s.Best("favorite_color", "")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestBestByTicker(t *testing.T) {
	s := testStore(t)

	spy := sampleResult("SPY", 104_000)
	qqq := sampleResult("QQQ", 119_000)
	require.NoError(t, s.Save(spy, analytics.Compute(spy, 0), nil))
	require.NoError(t, s.Save(qqq, analytics.Compute(qqq, 0), nil))

	best, err := s.Best("", "SPY")
	require.NoError(t, err)
	assert.Equal(t, spy.RunID, best.ID)

	_, err = s.Best("", "IWM")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestBestByDrawdownRanksLowest(t *testing.T) {
	s := testStore(t)

	smooth := sampleResult("SPY", 105_000)
	smooth.Equity = backtest.EquityCurve{
		{Date: smooth.Start, Equity: 100_000},
		{Date: smooth.Start.AddDate(0, 0, 1), Equity: 102_000},
		{Date: smooth.End, Equity: 105_000},
	}
	rough := sampleResult("SPY", 110_000)
	rough.Equity = backtest.EquityCurve{
		{Date: rough.Start, Equity: 100_000},
		{Date: rough.Start.AddDate(0, 0, 1), Equity: 80_000},
		{Date: rough.End, Equity: 110_000},
	}
	require.NoError(t, s.Save(smooth, analytics.Compute(smooth, 0), nil))
	require.NoError(t, s.Save(rough, analytics.Compute(rough, 0), nil))

	best, err := s.Best("max_drawdown", "")
	require.NoError(t, err)
	assert.Equal(t, smooth.RunID, best.ID)
}

func TestReportFilesRoundTrip(t *testing.T) {
	s := testStore(t)
	res := sampleResult("SPY", 104_000)
	files := []string{"output/spy_equity_abc123.csv", "output/spy_summary_abc123.json"}

	require.NoError(t, s.Save(res, analytics.Compute(res, 0), files))

	rec, _, err := s.Get(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, files, rec.ReportFiles)
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	res := sampleResult("SPY", 103_000)
	require.NoError(t, s.Save(res, analytics.Compute(res, 0), nil))

	require.NoError(t, s.Delete(res.RunID))
	assert.ErrorIs(t, s.Delete(res.RunID), ErrRunNotFound)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := testStore(t)
	res := sampleResult("SPY", 103_000)
	m := analytics.Compute(res, 0)

	require.NoError(t, s.Save(res, m, nil))
	assert.Error(t, s.Save(res, m, nil))
}
