package report

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorsadeh/wheel/internal/analytics"
	"github.com/dorsadeh/wheel/internal/backtest"
	"github.com/dorsadeh/wheel/internal/models"
	"github.com/dorsadeh/wheel/internal/strategy"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func sampleResult() *backtest.Result {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	exp := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		RunID:          "0b5e8d7a-1111-2222-3333-444455556666",
		Ticker:         "SPY",
		Start:          start,
		End:            exp,
		InitialCapital: 100_000,
		FinalEquity:    100_420,
		TradingDays:    2,
		Equity: backtest.EquityCurve{
			{Date: start, Equity: 100_000, Cash: 100_420, UnderlyingClose: 470.1},
			{Date: exp, Equity: 100_420, Cash: 100_420, UnderlyingClose: 472.3},
		},
		Transactions: []backtest.Transaction{
			{
				Date: start, Kind: models.EventSellPut, State: models.SellingPuts,
				Strike: 450, Expiration: &exp, Contracts: 1, Premium: 4.2,
				UnderlyingPrice: 470.1, CashAfter: 100_420,
			},
			{
				Date: exp, Kind: models.EventPutExpired, State: models.SellingPuts,
				Strike: 450, Premium: 4.2, PnL: 420, UnderlyingPrice: 472.3,
				CashAfter: 100_420,
			},
		},
		Summary:     strategy.Summary{PutsSold: 1, PutsExpiredOTM: 1, FinalState: models.SellingPuts},
		CompletedAt: time.Now().UTC(),
	}
}

func TestWriteProducesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, testLogger())
	require.NoError(t, err)

	res := sampleResult()
	files, err := w.Write(res, analytics.Compute(res, 0))
	require.NoError(t, err)

	for _, path := range []string{files.Equity, files.Transactions, files.Summary} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(0))
	}

	// File names carry the ticker and a run id prefix.
	assert.Contains(t, files.Equity, "SPY_equity_0b5e8d7a")
	assert.Contains(t, files.Transactions, "SPY_transactions_0b5e8d7a")
}

func TestEquityCSVContent(t *testing.T) {
	w, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	res := sampleResult()
	files, err := w.Write(res, analytics.Compute(res, 0))
	require.NoError(t, err)

	b, err := os.ReadFile(files.Equity)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,equity,cash,shares,underlying_close", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-01-02,100000,"))
}

func TestTransactionsCSVContent(t *testing.T) {
	w, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	res := sampleResult()
	files, err := w.Write(res, analytics.Compute(res, 0))
	require.NoError(t, err)

	b, err := os.ReadFile(files.Transactions)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "sell_put")
	assert.Contains(t, lines[1], "2024-02-02")
	assert.Contains(t, lines[2], "put_expired")
	// The expiry row has no expiration of its own.
	assert.Contains(t, lines[2], ",,")
}

func TestSummaryJSONContent(t *testing.T) {
	w, err := NewWriter(t.TempDir(), testLogger())
	require.NoError(t, err)

	res := sampleResult()
	m := analytics.Compute(res, 0)
	files, err := w.Write(res, m)
	require.NoError(t, err)

	b, err := os.ReadFile(files.Summary)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, res.RunID, doc["run_id"])
	assert.Equal(t, "SPY", doc["ticker"])
	assert.Equal(t, "2024-01-02", doc["start"])

	metrics, ok := doc["metrics"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.0042, metrics["total_return"].(float64), 1e-9)
}

func TestNewWriterCreatesNestedDir(t *testing.T) {
	dir := t.TempDir() + "/nested/out"
	_, err := NewWriter(dir, testLogger())
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
