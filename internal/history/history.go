// Package history persists completed backtest runs in a local SQLite
// database so they can be listed, compared, and re-examined later.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/dorsadeh/wheel/internal/analytics"
	"github.com/dorsadeh/wheel/internal/backtest"
)

var (
	// ErrRunNotFound is returned when no stored run matches the given id.
	ErrRunNotFound = errors.New("run not found")
	// ErrUnknownMetric is returned by Best for a metric name outside
	// bestOrderings.
	ErrUnknownMetric = errors.New("unknown metric")
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_history (
	id              TEXT PRIMARY KEY,
	ticker          TEXT NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	final_equity    REAL NOT NULL,
	total_return    REAL NOT NULL,
	cagr            REAL NOT NULL,
	sharpe_ratio    REAL NOT NULL,
	max_drawdown    REAL NOT NULL,
	win_rate        REAL NOT NULL,
	trades_closed   INTEGER NOT NULL,
	puts_sold       INTEGER NOT NULL,
	calls_sold      INTEGER NOT NULL,
	assignments     INTEGER NOT NULL,
	final_state     TEXT NOT NULL,
	report_files    TEXT NOT NULL DEFAULT '[]',
	created_at      TEXT NOT NULL,
	result_json     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_history_ticker ON backtest_history(ticker);
CREATE INDEX IF NOT EXISTS idx_backtest_history_created ON backtest_history(created_at);
`

// Record is the headline row for one stored run. The full result is kept
// as JSON alongside it.
type Record struct {
	ID             string    `json:"id"`
	Ticker         string    `json:"ticker"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturn    float64   `json:"total_return"`
	CAGR           float64   `json:"cagr"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	WinRate        float64   `json:"win_rate"`
	TradesClosed   int       `json:"trades_closed"`
	PutsSold       int       `json:"puts_sold"`
	CallsSold      int       `json:"calls_sold"`
	Assignments    int       `json:"assignments"`
	FinalState     string    `json:"final_state"`
	ReportFiles    []string  `json:"report_files,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store wraps the SQLite database holding run history.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// Open opens (or creates) the history database at path and applies the
// schema.
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a completed run with its computed metrics. reportFiles
// lists the artifact paths written for the run, if any.
func (s *Store) Save(res *backtest.Result, m analytics.Metrics, reportFiles []string) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}
	if reportFiles == nil {
		reportFiles = []string{}
	}
	files, err := json.Marshal(reportFiles)
	if err != nil {
		return fmt.Errorf("encoding report files: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO backtest_history (
			id, ticker, start_date, end_date, initial_capital, final_equity,
			total_return, cagr, sharpe_ratio, max_drawdown, win_rate,
			trades_closed, puts_sold, calls_sold, assignments, final_state,
			report_files, created_at, result_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Ticker,
		res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339),
		res.InitialCapital, res.FinalEquity,
		m.TotalReturn, m.CAGR, m.SharpeRatio, m.MaxDrawdown, m.WinRate,
		m.TradesClosed,
		res.Summary.PutsSold, res.Summary.CallsSold,
		res.Summary.PutAssignments+res.Summary.CallAssignments,
		string(res.Summary.FinalState),
		string(files),
		res.CompletedAt.Format(time.RFC3339), string(payload),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", res.RunID, err)
	}

	s.log.WithFields(logrus.Fields{"run_id": res.RunID, "ticker": res.Ticker}).
		Info("Saved backtest run")
	return nil
}

// List returns the most recent runs, newest first. A limit of 0 returns
// everything.
func (s *Store) List(limit int) ([]Record, error) {
	query := selectColumns + ` ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// ListByTicker returns the most recent runs for one ticker, newest first.
func (s *Store) ListByTicker(ticker string, limit int) ([]Record, error) {
	query := selectColumns + ` WHERE ticker = ? ORDER BY created_at DESC`
	args := []any{ticker}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// bestOrderings maps a metric name to the ordering that ranks runs from
// best to worst on it. Keys double as the set of accepted metric names.
var bestOrderings = map[string]string{
	"total_return": `total_return DESC`,
	"cagr":         `cagr DESC`,
	"sharpe_ratio": `sharpe_ratio DESC`,
	"win_rate":     `win_rate DESC`,
	"final_equity": `final_equity DESC`,
	"max_drawdown": `max_drawdown ASC`,
}

// Best returns the stored run ranking highest on the given metric,
// optionally restricted to one ticker. An empty metric means total
// return. Returns ErrRunNotFound when nothing matches.
func (s *Store) Best(metric, ticker string) (Record, error) {
	if metric == "" {
		metric = "total_return"
	}
	order, ok := bestOrderings[metric]
	if !ok {
		return Record{}, fmt.Errorf("%w %q", ErrUnknownMetric, metric)
	}
	query := selectColumns
	args := []any{}
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	recs, err := s.queryRecords(query+` ORDER BY `+order+` LIMIT 1`, args...)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrRunNotFound
	}
	return recs[0], nil
}

// Get returns the headline record and the full stored result for one run.
func (s *Store) Get(id string) (Record, *backtest.Result, error) {
	row := s.db.QueryRow(selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return Record{}, nil, err
	}

	var payload string
	if err := s.db.QueryRow(`SELECT result_json FROM backtest_history WHERE id = ?`, id).Scan(&payload); err != nil {
		return Record{}, nil, fmt.Errorf("loading run %s payload: %w", id, err)
	}
	var res backtest.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return Record{}, nil, fmt.Errorf("decoding run %s payload: %w", id, err)
	}
	return rec, &res, nil
}

// Delete removes one stored run; returns ErrRunNotFound if absent.
func (s *Store) Delete(id string) error {
	out, err := s.db.Exec(`DELETE FROM backtest_history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// Count returns the number of stored runs.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM backtest_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

const selectColumns = `
	SELECT id, ticker, start_date, end_date, initial_capital, final_equity,
	       total_return, cagr, sharpe_ratio, max_drawdown, win_rate,
	       trades_closed, puts_sold, calls_sold, assignments, final_state,
	       report_files, created_at
	FROM backtest_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                        Record
		start, end, created, files string
	)
	err := row.Scan(
		&rec.ID, &rec.Ticker, &start, &end, &rec.InitialCapital, &rec.FinalEquity,
		&rec.TotalReturn, &rec.CAGR, &rec.SharpeRatio, &rec.MaxDrawdown, &rec.WinRate,
		&rec.TradesClosed, &rec.PutsSold, &rec.CallsSold, &rec.Assignments, &rec.FinalState,
		&files, &created,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(files), &rec.ReportFiles); err != nil {
		return Record{}, fmt.Errorf("parsing report files: %w", err)
	}
	if rec.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return Record{}, fmt.Errorf("parsing start date: %w", err)
	}
	if rec.End, err = time.Parse(time.RFC3339, end); err != nil {
		return Record{}, fmt.Errorf("parsing end date: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return Record{}, fmt.Errorf("parsing created at: %w", err)
	}
	return rec, nil
}

func (s *Store) queryRecords(query string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
