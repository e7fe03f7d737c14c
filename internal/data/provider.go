// Package data supplies the backtester with historical option chains and
// underlying price bars, with disk caching and a retrying HTTP client in
// front of the remote dataset host.
package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dorsadeh/wheel/internal/models"
)

// ErrNoData is returned when a provider has nothing for the requested
// ticker or range.
var ErrNoData = errors.New("no data available")

// APIError is a non-2xx response from the dataset host.
type APIError struct {
	Status int
	URL    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dataset request failed: status %d for %s", e.Status, e.URL)
}

// IsPermanent reports whether retrying cannot help: 4xx except 429.
func (e *APIError) IsPermanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 429
}

// Bar is one daily price bar of the underlying.
type Bar struct {
	Date   time.Time `csv:"date"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume int64     `csv:"volume"`
}

// OptionsProvider loads a ticker's full option-chain history.
type OptionsProvider interface {
	Name() string
	OptionsHistory(ctx context.Context, ticker string) (*ChainHistory, error)
}

// PriceProvider loads daily bars for the underlying.
type PriceProvider interface {
	Name() string
	DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
}

// ChainHistory is a ticker's option chains indexed by trading day.
type ChainHistory struct {
	byDay map[time.Time]models.Chain
	days  []time.Time
}

// NewChainHistory groups chain rows by trade date.
func NewChainHistory(rows []models.OptionQuote) *ChainHistory {
	h := &ChainHistory{byDay: make(map[time.Time]models.Chain)}
	for _, row := range rows {
		day := models.Day(row.TradeDate)
		if _, ok := h.byDay[day]; !ok {
			h.days = append(h.days, day)
		}
		h.byDay[day] = append(h.byDay[day], row)
	}
	sort.Slice(h.days, func(i, j int) bool { return h.days[i].Before(h.days[j]) })
	return h
}

// ChainFor returns the chain for a trading day; nil when the day has no
// chain data (a no-trade day for the strategy, never an error).
func (h *ChainHistory) ChainFor(day time.Time) models.Chain {
	return h.byDay[models.Day(day)]
}

// Days returns the days with chain data, ascending.
func (h *ChainHistory) Days() []time.Time {
	out := make([]time.Time, len(h.days))
	copy(out, h.days)
	return out
}

// Len returns the number of days with chain data.
func (h *ChainHistory) Len() int { return len(h.days) }
