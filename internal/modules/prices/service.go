// Package prices loads aligned price tables, serving them from the sqlite
// cache and fetching uncached symbols from the configured data source.
package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
)

// DefaultHistoryYears is the window loaded when no start date is given.
const DefaultHistoryYears = 5

// Service loads price history through the cache.
type Service struct {
	source     domain.PriceSource
	sourceName string
	repo       *Repository
	log        zerolog.Logger
	now        func() time.Time
}

// NewService creates a price service. A nil source makes every load fail
// with domain.ErrMissingDependency; a nil repository disables caching.
func NewService(source domain.PriceSource, sourceName string, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		source:     source,
		sourceName: sourceName,
		repo:       repo,
		log:        log.With().Str("service", "prices").Logger(),
		now:        time.Now,
	}
}

// Window resolves optional bounds to [now - 5 years, now].
func (s *Service) Window(start, end *time.Time) (time.Time, time.Time, error) {
	to := s.now()
	if end != nil {
		to = *end
	}
	from := to.AddDate(-DefaultHistoryYears, 0, 0)
	if start != nil {
		from = *start
	}
	from, to = domain.TruncateDay(from), domain.TruncateDay(to)
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s is after end %s", domain.ErrInvalidRequest, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return from, to, nil
}

// Load returns adjusted closes for tickers on the dates where all of them
// traded. Symbols whose cached range does not cover the window are fetched
// from the source and cached first.
func (s *Service) Load(ctx context.Context, tickers []string, start, end *time.Time) (*domain.PriceSeries, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no price data source configured", domain.ErrMissingDependency)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers requested", domain.ErrInvalidPriceSeries)
	}

	from, to, err := s.Window(start, end)
	if err != nil {
		return nil, err
	}

	if s.repo == nil {
		ps, err := s.source.FetchPrices(ctx, tickers, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices: %w", err)
		}
		return aligned(ps)
	}

	missing, fetchFrom, fetchTo, err := s.uncovered(tickers, from, to)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		if _, err := s.fetchAndStore(ctx, missing, fetchFrom, fetchTo); err != nil {
			return nil, err
		}
	}

	observations, err := s.repo.GetObservations(tickers, from, to)
	if err != nil {
		return nil, err
	}
	ps, err := domain.BuildPriceSeries(tickers, observations)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Strs("tickers", tickers).
		Int("fetched", len(missing)).
		Int("observations", len(observations)).
		Msg("Loaded prices")

	return aligned(ps)
}

// Refresh re-fetches the default window for tickers and upserts it into the
// cache. Returns the number of prices written.
func (s *Service) Refresh(ctx context.Context, tickers []string) (int, error) {
	if s.source == nil {
		return 0, fmt.Errorf("%w: no price data source configured", domain.ErrMissingDependency)
	}
	if s.repo == nil {
		return 0, fmt.Errorf("%w: no price cache configured", domain.ErrMissingDependency)
	}
	if len(tickers) == 0 {
		return 0, nil
	}

	from, to, err := s.Window(nil, nil)
	if err != nil {
		return 0, err
	}

	// Keep coverage contiguous with anything cached earlier
	for _, t := range tickers {
		c, err := s.repo.GetCoverage(t)
		if err != nil {
			return 0, err
		}
		if c != nil && c.FirstDate.Before(from) && !c.LastDate.Before(from) {
			from = c.FirstDate
		}
	}

	written, err := s.fetchAndStore(ctx, tickers, from, to)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Strs("tickers", tickers).
		Int("prices", written).
		Msg("Refreshed prices")

	return written, nil
}

// Coverage lists every cached symbol.
func (s *Service) Coverage() ([]Coverage, error) {
	if s.repo == nil {
		return []Coverage{}, nil
	}
	return s.repo.ListCoverage()
}

// uncovered returns the tickers whose cached range misses [from, to], along
// with a fetch range that also spans their existing coverage so each symbol's
// cached range stays contiguous.
func (s *Service) uncovered(tickers []string, from, to time.Time) ([]string, time.Time, time.Time, error) {
	var missing []string
	fetchFrom, fetchTo := from, to
	for _, t := range tickers {
		c, err := s.repo.GetCoverage(t)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		if c.Covers(from, to) {
			continue
		}
		missing = append(missing, t)
		if c != nil {
			if c.FirstDate.Before(fetchFrom) {
				fetchFrom = c.FirstDate
			}
			if c.LastDate.After(fetchTo) {
				fetchTo = c.LastDate
			}
		}
	}
	return missing, fetchFrom, fetchTo, nil
}

func (s *Service) fetchAndStore(ctx context.Context, tickers []string, from, to time.Time) (int, error) {
	ps, err := s.source.FetchPrices(ctx, tickers, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch prices: %w", err)
	}
	written, err := s.repo.Store(ps, s.sourceName, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to cache prices: %w", err)
	}
	return written, nil
}

func aligned(ps *domain.PriceSeries) (*domain.PriceSeries, error) {
	out := ps.DropIncomplete()
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: no date with a price for every ticker", domain.ErrInsufficientHistory)
	}
	return out, nil
}
