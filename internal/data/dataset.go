package data

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dorsadeh/wheel/internal/models"
)

// DefaultBaseURL is the public mirror of the historical chains dataset.
const DefaultBaseURL = "https://static.philippdubach.com/data/options"

// Dataset coverage. Requests outside this window cannot succeed, so they
// are rejected before touching the network.
var (
	DatasetStart = time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC)
	DatasetEnd   = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// tickerCategories maps each ticker covered by the dataset to a coarse
// category, used by the CLI's ticker listing.
var tickerCategories = map[string]string{
	"SPY":  "index_etf",
	"QQQ":  "index_etf",
	"IWM":  "index_etf",
	"DIA":  "index_etf",
	"GLD":  "commodity_etf",
	"SLV":  "commodity_etf",
	"USO":  "commodity_etf",
	"TLT":  "bond_etf",
	"HYG":  "bond_etf",
	"AAPL": "mega_cap",
	"MSFT": "mega_cap",
	"AMZN": "mega_cap",
	"GOOG": "mega_cap",
	"NVDA": "mega_cap",
	"META": "mega_cap",
	"TSLA": "mega_cap",
	"AMD":  "semiconductor",
	"INTC": "semiconductor",
	"MU":   "semiconductor",
	"JPM":  "financial",
	"BAC":  "financial",
	"GS":   "financial",
	"XOM":  "energy",
	"CVX":  "energy",
	"KO":   "consumer",
	"PEP":  "consumer",
	"WMT":  "consumer",
	"DIS":  "consumer",
	"F":    "auto",
	"GM":   "auto",
}

// AvailableTickers returns the tickers covered by the dataset, ascending.
func AvailableTickers() []string {
	out := make([]string, 0, len(tickerCategories))
	for t := range tickerCategories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TickerCategory returns the dataset category for a ticker, or "" if the
// ticker is not covered.
func TickerCategory(ticker string) string {
	return tickerCategories[strings.ToUpper(ticker)]
}

// DatasetProvider serves historical option chains and daily underlying bars
// from a static file host, with a local on-disk cache in front of it. Files
// are gzipped CSV, one per ticker per kind.
type DatasetProvider struct {
	baseURL string
	client  *Client
	cache   *Cache
	log     *logrus.Logger

	mu   sync.Mutex
	mem  map[string]*ChainHistory
	bars map[string][]Bar
}

// NewDatasetProvider builds a provider over the given base URL. An empty
// baseURL selects DefaultBaseURL. The cache may be nil, in which case every
// request goes to the network.
func NewDatasetProvider(baseURL string, client *Client, cache *Cache, log *logrus.Logger) *DatasetProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &DatasetProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   cache,
		log:     log,
		mem:     make(map[string]*ChainHistory),
		bars:    make(map[string][]Bar),
	}
}

func (p *DatasetProvider) Name() string { return "dataset" }

// OptionsHistory returns the full chain history for a ticker, fetching and
// caching the dataset file on first use.
func (p *DatasetProvider) OptionsHistory(ctx context.Context, ticker string) (*ChainHistory, error) {
	ticker = strings.ToUpper(ticker)

	p.mu.Lock()
	if h, ok := p.mem[ticker]; ok {
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	raw, err := p.load(ctx, ticker, "options")
	if err != nil {
		return nil, err
	}
	rows, err := decodeGzipCSV(raw, ParseChainCSV)
	if err != nil {
		return nil, fmt.Errorf("options dataset for %s: %w", ticker, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("options dataset for %s: %w", ticker, ErrNoData)
	}

	h := NewChainHistory(rows)
	p.log.WithFields(logrus.Fields{
		"ticker": ticker,
		"rows":   len(rows),
		"days":   h.Len(),
	}).Info("Loaded option chain history")

	p.mu.Lock()
	p.mem[ticker] = h
	p.mu.Unlock()
	return h, nil
}

// DailyBars returns the underlying's daily bars within [start, end],
// inclusive, sorted ascending.
func (p *DatasetProvider) DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	ticker = strings.ToUpper(ticker)
	start, end = models.Day(start), models.Day(end)

	p.mu.Lock()
	all, ok := p.bars[ticker]
	p.mu.Unlock()

	if !ok {
		raw, err := p.load(ctx, ticker, "underlying")
		if err != nil {
			return nil, err
		}
		all, err = decodeGzipCSV(raw, ParseBarsCSV)
		if err != nil {
			return nil, fmt.Errorf("underlying dataset for %s: %w", ticker, err)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

		p.mu.Lock()
		p.bars[ticker] = all
		p.mu.Unlock()
	}

	out := make([]Bar, 0, len(all))
	for _, b := range all {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bars for %s in %s..%s: %w",
			ticker, start.Format("2006-01-02"), end.Format("2006-01-02"), ErrNoData)
	}
	return out, nil
}

// Validate rejects tickers and date windows the dataset cannot serve.
func (p *DatasetProvider) Validate(ticker string, start, end time.Time) error {
	if TickerCategory(ticker) == "" {
		return fmt.Errorf("ticker %s is not covered by the dataset: %w", strings.ToUpper(ticker), ErrNoData)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s precedes start date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if end.Before(DatasetStart) || start.After(DatasetEnd) {
		return fmt.Errorf("window %s..%s is outside dataset coverage %s..%s: %w",
			start.Format("2006-01-02"), end.Format("2006-01-02"),
			DatasetStart.Format("2006-01-02"), DatasetEnd.Format("2006-01-02"), ErrNoData)
	}
	return nil
}

// load returns the raw gzipped file for a ticker/kind, preferring the
// local cache and falling back to the network.
func (p *DatasetProvider) load(ctx context.Context, ticker, kind string) ([]byte, error) {
	if p.cache != nil {
		if b, err := p.cache.Get(p.Name(), ticker, kind); err == nil {
			p.log.WithFields(logrus.Fields{"ticker": ticker, "kind": kind}).Debug("Cache hit")
			return b, nil
		}
	}

	url := fmt.Sprintf("%s/%s_%s.csv.gz", p.baseURL, strings.ToLower(ticker), kind)
	p.log.WithFields(logrus.Fields{"ticker": ticker, "kind": kind, "url": url}).Info("Downloading dataset file")

	b, err := p.client.Download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("downloading %s %s: %w", ticker, kind, err)
	}

	if p.cache != nil {
		if err := p.cache.Put(p.Name(), ticker, kind, b); err != nil {
			p.log.WithError(err).WithField("ticker", ticker).Warn("Failed to cache dataset file")
		}
	}
	return b, nil
}

// decodeGzipCSV gunzips raw bytes and hands the stream to a CSV parser.
func decodeGzipCSV[T any](raw []byte, parse func(io.Reader) ([]T, error)) ([]T, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()
	return parse(zr)
}
