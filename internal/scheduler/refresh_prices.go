package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PriceRefresher re-fetches and stores price history.
type PriceRefresher interface {
	Refresh(ctx context.Context, tickers []string) (int, error)
}

// RefreshPricesJob keeps the price cache current for a fixed ticker list.
type RefreshPricesJob struct {
	log       zerolog.Logger
	refresher PriceRefresher
	tickers   []string
	timeout   time.Duration
}

// NewRefreshPricesJob creates a new RefreshPricesJob
func NewRefreshPricesJob(refresher PriceRefresher, tickers []string, timeout time.Duration) *RefreshPricesJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RefreshPricesJob{
		log:       zerolog.Nop(),
		refresher: refresher,
		tickers:   tickers,
		timeout:   timeout,
	}
}

// SetLogger sets the logger for the job
func (j *RefreshPricesJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Run executes the refresh
func (j *RefreshPricesJob) Run() error {
	if len(j.tickers) == 0 {
		j.log.Debug().Msg("No tickers configured, skipping refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	rows, err := j.refresher.Refresh(ctx, j.tickers)
	if err != nil {
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	j.log.Info().
		Int("tickers", len(j.tickers)).
		Int("rows", rows).
		Dur("duration", time.Since(start)).
		Msg("Price refresh completed")
	return nil
}
