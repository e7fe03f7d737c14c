package data

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/dorsadeh/wheel/internal/models"
)

const csvDateLayout = "2006-01-02"

// csvDate is a calendar date in CSV files, always YYYY-MM-DD.
type csvDate struct {
	time.Time
}

func (d *csvDate) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty date field")
	}
	t, err := time.Parse(csvDateLayout, s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d csvDate) MarshalCSV() (string, error) {
	return d.Format(csvDateLayout), nil
}

// nullFloat is a float column that may be blank (e.g. missing greeks).
type nullFloat struct {
	Val   float64
	Valid bool
}

func (n *nullFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		n.Valid = false
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing float %q: %w", s, err)
	}
	n.Val = v
	n.Valid = true
	return nil
}

func (n nullFloat) MarshalCSV() (string, error) {
	if !n.Valid {
		return "", nil
	}
	return strconv.FormatFloat(n.Val, 'f', -1, 64), nil
}

// Ptr returns nil for blank columns, a pointer to the value otherwise.
func (n nullFloat) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Val
	return &v
}

// chainRow is the on-disk layout of one option-chain record.
type chainRow struct {
	Date         csvDate   `csv:"date"`
	Expiration   csvDate   `csv:"expiration"`
	Kind         string    `csv:"type"`
	Strike       float64   `csv:"strike"`
	Bid          float64   `csv:"bid"`
	Ask          float64   `csv:"ask"`
	Last         nullFloat `csv:"last"`
	Volume       nullFloat `csv:"volume"`
	OpenInterest nullFloat `csv:"open_interest"`
	ImpliedVol   nullFloat `csv:"implied_volatility"`
	Delta        nullFloat `csv:"delta"`
	Gamma        nullFloat `csv:"gamma"`
	Theta        nullFloat `csv:"theta"`
	Vega         nullFloat `csv:"vega"`
	Rho          nullFloat `csv:"rho"`
}

// ParseChainCSV decodes option-chain rows from CSV. Rows with an unknown
// option type are rejected; the dataset is expected to be clean.
func ParseChainCSV(r io.Reader) ([]models.OptionQuote, error) {
	var rows []chainRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding chain csv: %w", err)
	}

	out := make([]models.OptionQuote, 0, len(rows))
	for i, row := range rows {
		kind := models.OptionKind(strings.ToLower(row.Kind))
		if !kind.Valid() {
			return nil, fmt.Errorf("chain csv row %d: unknown option type %q", i+1, row.Kind)
		}
		q := models.OptionQuote{
			TradeDate:  models.Day(row.Date.Time),
			Expiration: models.Day(row.Expiration.Time),
			Kind:       kind,
			Strike:     row.Strike,
			Bid:        row.Bid,
			Ask:        row.Ask,
			Delta:      row.Delta.Ptr(),
			Gamma:      row.Gamma.Ptr(),
			Theta:      row.Theta.Ptr(),
			Vega:       row.Vega.Ptr(),
			Rho:        row.Rho.Ptr(),
		}
		if row.Last.Valid {
			q.Last = row.Last.Val
		}
		if row.Volume.Valid {
			q.Volume = int64(row.Volume.Val)
		}
		if row.OpenInterest.Valid {
			q.OpenInterest = int64(row.OpenInterest.Val)
		}
		if row.ImpliedVol.Valid {
			q.ImpliedVol = row.ImpliedVol.Val
		}
		out = append(out, q)
	}
	return out, nil
}

// barRow is the on-disk layout of one daily price bar.
type barRow struct {
	Date   csvDate   `csv:"date"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume nullFloat `csv:"volume"`
}

// ParseBarsCSV decodes daily underlying bars from CSV.
func ParseBarsCSV(r io.Reader) ([]Bar, error) {
	var rows []barRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding bars csv: %w", err)
	}

	out := make([]Bar, 0, len(rows))
	for _, row := range rows {
		b := Bar{
			Date:  models.Day(row.Date.Time),
			Open:  row.Open,
			High:  row.High,
			Low:   row.Low,
			Close: row.Close,
		}
		if row.Volume.Valid {
			b.Volume = int64(row.Volume.Val)
		}
		out = append(out, b)
	}
	return out, nil
}
