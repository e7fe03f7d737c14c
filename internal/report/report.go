// Package report writes a completed run's equity curve and trade ledger to
// CSV files, and the run summary to JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"github.com/dorsadeh/wheel/internal/analytics"
	"github.com/dorsadeh/wheel/internal/backtest"
)

const dateLayout = "2006-01-02"

// Writer exports run artifacts into a directory, one set of files per run,
// suffixed with the run id so repeated runs never clobber each other.
type Writer struct {
	dir string
	log *logrus.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string, log *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Writer{dir: dir, log: log}, nil
}

// Files names the artifacts written for one run.
type Files struct {
	Equity       string `json:"equity"`
	Transactions string `json:"transactions"`
	Summary      string `json:"summary"`
}

// Paths returns the written paths as a flat list.
func (f Files) Paths() []string {
	return []string{f.Equity, f.Transactions, f.Summary}
}

// Write exports the equity curve, transactions, and a JSON summary for the
// run, returning the paths written.
func (w *Writer) Write(res *backtest.Result, m analytics.Metrics) (Files, error) {
	files := Files{
		Equity:       w.path(res, "equity", "csv"),
		Transactions: w.path(res, "transactions", "csv"),
		Summary:      w.path(res, "summary", "json"),
	}

	if err := writeCSV(files.Equity, equityRows(res.Equity)); err != nil {
		return Files{}, fmt.Errorf("writing equity curve: %w", err)
	}
	if err := writeCSV(files.Transactions, transactionRows(res.Transactions)); err != nil {
		return Files{}, fmt.Errorf("writing transactions: %w", err)
	}
	if err := w.writeSummary(files.Summary, res, m); err != nil {
		return Files{}, err
	}

	w.log.WithFields(logrus.Fields{
		"run_id": res.RunID,
		"dir":    w.dir,
	}).Info("Wrote run report")
	return files, nil
}

func (w *Writer) path(res *backtest.Result, kind, ext string) string {
	name := fmt.Sprintf("%s_%s_%s.%s", res.Ticker, kind, res.RunID[:8], ext)
	return filepath.Join(w.dir, name)
}

// summaryDoc is the JSON layout of the run summary file.
type summaryDoc struct {
	RunID          string            `json:"run_id"`
	Ticker         string            `json:"ticker"`
	Start          string            `json:"start"`
	End            string            `json:"end"`
	InitialCapital float64           `json:"initial_capital"`
	FinalEquity    float64           `json:"final_equity"`
	TradingDays    int               `json:"trading_days"`
	Metrics        analytics.Metrics `json:"metrics"`
	Wheel          any               `json:"wheel"`
	CompletedAt    time.Time         `json:"completed_at"`
}

func (w *Writer) writeSummary(path string, res *backtest.Result, m analytics.Metrics) error {
	doc := summaryDoc{
		RunID:          res.RunID,
		Ticker:         res.Ticker,
		Start:          res.Start.Format(dateLayout),
		End:            res.End.Format(dateLayout),
		InitialCapital: res.InitialCapital,
		FinalEquity:    res.FinalEquity,
		TradingDays:    res.TradingDays,
		Metrics:        m,
		Wheel:          res.Summary,
		CompletedAt:    res.CompletedAt,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// equityRow is the CSV layout of one equity curve point.
type equityRow struct {
	Date            string  `csv:"date"`
	Equity          float64 `csv:"equity"`
	Cash            float64 `csv:"cash"`
	Shares          int     `csv:"shares"`
	UnderlyingClose float64 `csv:"underlying_close"`
}

func equityRows(curve backtest.EquityCurve) []equityRow {
	out := make([]equityRow, 0, len(curve))
	for _, p := range curve {
		out = append(out, equityRow{
			Date:            p.Date.Format(dateLayout),
			Equity:          p.Equity,
			Cash:            p.Cash,
			Shares:          p.Shares,
			UnderlyingClose: p.UnderlyingClose,
		})
	}
	return out
}

// transactionRow is the CSV layout of one trade ledger entry.
type transactionRow struct {
	Date            string  `csv:"date"`
	Kind            string  `csv:"kind"`
	State           string  `csv:"state"`
	Strike          float64 `csv:"strike"`
	Expiration      string  `csv:"expiration"`
	Contracts       int     `csv:"contracts"`
	Premium         float64 `csv:"premium"`
	PnL             float64 `csv:"pnl"`
	UnderlyingPrice float64 `csv:"underlying_price"`
	CashAfter       float64 `csv:"cash_after"`
	SharesAfter     int     `csv:"shares_after"`
}

func transactionRows(txs []backtest.Transaction) []transactionRow {
	out := make([]transactionRow, 0, len(txs))
	for _, tx := range txs {
		row := transactionRow{
			Date:            tx.Date.Format(dateLayout),
			Kind:            string(tx.Kind),
			State:           string(tx.State),
			Strike:          tx.Strike,
			Contracts:       tx.Contracts,
			Premium:         tx.Premium,
			PnL:             tx.PnL,
			UnderlyingPrice: tx.UnderlyingPrice,
			CashAfter:       tx.CashAfter,
			SharesAfter:     tx.SharesAfter,
		}
		if tx.Expiration != nil {
			row.Expiration = tx.Expiration.Format(dateLayout)
		}
		out = append(out, row)
	}
	return out
}

func writeCSV[T any](path string, rows []T) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- path is built from run metadata
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
