package domain

import (
	"context"
	"time"
)

// PriceSource fetches adjusted closing prices for a set of symbols.
// Implementations return a table whose dates are present for every symbol.
type PriceSource interface {
	FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*PriceSeries, error)
}
