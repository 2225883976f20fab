package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/utils"
)

// Request selects a price history. Dates are YYYY-MM-DD and optional.
type Request struct {
	Tickers []string `json:"tickers"`
	Start   string   `json:"start,omitempty"`
	End     string   `json:"end,omitempty"`
}

// Parse normalizes the tickers and parses the dates.
func (r Request) Parse() ([]string, *time.Time, *time.Time, error) {
	tickers := utils.ParseTickers(r.Tickers...)
	if len(tickers) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: at least one ticker is required", domain.ErrInvalidRequest)
	}
	start, err := utils.ParseDate(r.Start)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: start: %v", domain.ErrInvalidRequest, err)
	}
	end, err := utils.ParseDate(r.End)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: end: %v", domain.ErrInvalidRequest, err)
	}
	return tickers, start, end, nil
}

// LoadRequest parses r and loads the selected history.
func (s *Service) LoadRequest(ctx context.Context, r Request) (*domain.PriceSeries, error) {
	tickers, start, end, err := r.Parse()
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, tickers, start, end)
}
