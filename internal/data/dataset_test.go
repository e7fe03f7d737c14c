package data

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorsadeh/wheel/internal/models"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func datasetServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	options := gzipBytes(t, sampleChainCSV)
	underlying := gzipBytes(t, `date,open,high,low,close,volume
2024-01-02,468.5,471.2,467.0,470.1,52000000
2024-01-03,470.0,470.8,465.3,466.2,48000000
`)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/spy_options.csv.gz":
			_, _ = w.Write(options)
		case "/spy_underlying.csv.gz":
			_, _ = w.Write(underlying)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDatasetProviderOptionsHistory(t *testing.T) {
	var hits atomic.Int32
	srv := datasetServer(t, &hits)
	defer srv.Close()

	client := NewClient(srv.Client(), testLogger(), fastRetryConfig())
	p := NewDatasetProvider(srv.URL, client, nil, testLogger())

	hist, err := p.OptionsHistory(context.Background(), "SPY")
	require.NoError(t, err)
	require.Equal(t, 1, hist.Len())

	chain := hist.ChainFor(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, chain)
	assert.Len(t, chain, 2)
	assert.Len(t, chain.Filter(models.Put), 1)

	// Second call is served from memory.
	_, err = p.OptionsHistory(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDatasetProviderDailyBarsWindow(t *testing.T) {
	var hits atomic.Int32
	srv := datasetServer(t, &hits)
	defer srv.Close()

	client := NewClient(srv.Client(), testLogger(), fastRetryConfig())
	p := NewDatasetProvider(srv.URL, client, nil, testLogger())

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars, err := p.DailyBars(context.Background(), "SPY", day, day)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 470.1, bars[0].Close, 1e-9)

	_, err = p.DailyBars(context.Background(), "SPY",
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDatasetProviderUsesCacheOnSecondRun(t *testing.T) {
	var hits atomic.Int32
	srv := datasetServer(t, &hits)
	defer srv.Close()

	cacheDir := t.TempDir()
	client := NewClient(srv.Client(), testLogger(), fastRetryConfig())

	cache, err := NewCache(cacheDir, testLogger())
	require.NoError(t, err)
	p := NewDatasetProvider(srv.URL, client, cache, testLogger())
	_, err = p.OptionsHistory(context.Background(), "SPY")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	// A fresh provider over the same cache dir never hits the host.
	cache2, err := NewCache(cacheDir, testLogger())
	require.NoError(t, err)
	p2 := NewDatasetProvider(srv.URL, client, cache2, testLogger())
	_, err = p2.OptionsHistory(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDatasetProviderUnknownTickerIsNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := datasetServer(t, &hits)
	defer srv.Close()

	client := NewClient(srv.Client(), testLogger(), fastRetryConfig())
	p := NewDatasetProvider(srv.URL, client, nil, testLogger())

	_, err := p.OptionsHistory(context.Background(), "ZZZZ")
	require.Error(t, err)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestDatasetValidate(t *testing.T) {
	p := NewDatasetProvider("", nil, nil, testLogger())

	ok := func(ticker string, start, end time.Time) error {
		return p.Validate(ticker, start, end)
	}

	jan := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, ok("SPY", jan, jun))
	assert.NoError(t, ok("spy", jan, jun))
	assert.Error(t, ok("NOPE", jan, jun))
	assert.Error(t, ok("SPY", jun, jan))
	assert.Error(t, ok("SPY",
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)))
}
