// Package csvprices reads and writes long-format price tables
// (date,symbol,price) so history can be loaded offline.
package csvprices

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
)

// Row is one line of a price file.
type Row struct {
	Date   string  `csv:"date"`
	Symbol string  `csv:"symbol"`
	Price  float64 `csv:"price"`
}

// Source implements domain.PriceSource over a CSV file.
type Source struct {
	path string
	log  zerolog.Logger
}

// NewSource creates a price source reading path on every fetch.
func NewSource(path string, log zerolog.Logger) *Source {
	return &Source{
		path: path,
		log:  log.With().Str("client", "csvprices").Str("path", path).Logger(),
	}
}

// FetchPrices returns the requested symbols between start and end inclusive.
func (s *Source) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	observations, err := Decode(f)
	if err != nil {
		return nil, err
	}

	from, to := domain.TruncateDay(start), domain.TruncateDay(end)
	filtered := observations[:0]
	for _, o := range observations {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		filtered = append(filtered, o)
	}

	s.log.Debug().
		Int("rows", len(observations)).
		Int("in_range", len(filtered)).
		Msg("Loaded price file")

	return domain.BuildPriceSeries(symbols, filtered)
}

// Decode parses a long-format price file.
func Decode(r io.Reader) ([]domain.Observation, error) {
	rows := []Row{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse price file: %w", err)
	}

	observations := make([]domain.Observation, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse(time.DateOnly, row.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		observations = append(observations, domain.Observation{
			Symbol: row.Symbol,
			Date:   date,
			Price:  row.Price,
		})
	}
	return observations, nil
}

// Encode writes a price table in long format, skipping missing prices.
func Encode(w io.Writer, ps *domain.PriceSeries) error {
	rows := make([]Row, 0, ps.Len()*ps.NumAssets())
	for i, d := range ps.Dates {
		for j, symbol := range ps.Symbols {
			p := ps.Prices[i][j]
			if math.IsNaN(p) {
				continue
			}
			rows = append(rows, Row{
				Date:   d.Format(time.DateOnly),
				Symbol: symbol,
				Price:  p,
			})
		}
	}
	return gocsv.Marshal(&rows, w)
}
