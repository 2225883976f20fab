// Package yahoo fetches daily adjusted closing prices from Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
)

// bar is one daily adjusted close.
type bar struct {
	Date     time.Time
	AdjClose float64
}

// barFetcher retrieves the daily bars of one symbol.
type barFetcher func(symbol string, start, end time.Time) ([]bar, error)

// Client implements domain.PriceSource on top of the Yahoo chart API.
type Client struct {
	fetch barFetcher
	log   zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		fetch: fetchChart,
		log:   log.With().Str("client", "yahoo").Logger(),
	}
}

// FetchPrices downloads the adjusted close of every symbol over [start, end]
// and aligns them on date.
func (c *Client) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceSeries, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", domain.ErrInvalidPriceSeries)
	}

	var observations []domain.Observation
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := c.fetch(symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
		}
		c.log.Debug().
			Str("symbol", symbol).
			Int("bars", len(bars)).
			Msg("Fetched daily bars")

		for _, b := range bars {
			if b.AdjClose <= 0 {
				continue
			}
			observations = append(observations, domain.Observation{
				Symbol: symbol,
				Date:   b.Date,
				Price:  b.AdjClose,
			})
		}
	}

	return domain.BuildPriceSeries(symbols, observations)
}

func fetchChart(symbol string, start, end time.Time) ([]bar, error) {
	params := &chart.Params{
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Symbol:   symbol,
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	bars := []bar{}
	for iter.Next() {
		b := iter.Bar()
		bars = append(bars, bar{
			Date:     time.Unix(int64(b.Timestamp), 0).UTC(),
			AdjClose: b.AdjClose.InexactFloat64(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}
