package prices

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
)

// Coverage is the date range already cached for a symbol.
type Coverage struct {
	Symbol    string    `json:"symbol"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Covers reports whether the cached range contains [from, to].
func (c *Coverage) Covers(from, to time.Time) bool {
	return c != nil && !from.Before(c.FirstDate) && !to.After(c.LastDate)
}

// Repository stores daily adjusted closes in the prices database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new price repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// GetCoverage returns the cached range for symbol, or nil if nothing is cached.
func (r *Repository) GetCoverage(symbol string) (*Coverage, error) {
	var c Coverage
	var first, last string
	var fetchedAt int64
	err := r.db.QueryRow(
		"SELECT symbol, first_date, last_date, source, fetched_at FROM symbol_coverage WHERE symbol = ?",
		symbol,
	).Scan(&c.Symbol, &first, &last, &c.Source, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coverage for %s: %w", symbol, err)
	}

	if c.FirstDate, err = time.Parse(time.DateOnly, first); err != nil {
		return nil, fmt.Errorf("invalid first_date for %s: %w", symbol, err)
	}
	if c.LastDate, err = time.Parse(time.DateOnly, last); err != nil {
		return nil, fmt.Errorf("invalid last_date for %s: %w", symbol, err)
	}
	c.FetchedAt = time.Unix(fetchedAt, 0).UTC()
	return &c, nil
}

// ListCoverage returns the cached range of every symbol, ordered by symbol.
func (r *Repository) ListCoverage() ([]Coverage, error) {
	rows, err := r.db.Query("SELECT symbol, first_date, last_date, source, fetched_at FROM symbol_coverage ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list coverage: %w", err)
	}
	defer rows.Close()

	out := make([]Coverage, 0)
	for rows.Next() {
		var c Coverage
		var first, last string
		var fetchedAt int64
		if err := rows.Scan(&c.Symbol, &first, &last, &c.Source, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		c.FirstDate, _ = time.Parse(time.DateOnly, first)
		c.LastDate, _ = time.Parse(time.DateOnly, last)
		c.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Store upserts every observed price in ps and records [from, to] as the
// covered range of each of its symbols. Returns the number of prices written.
func (r *Repository) Store(ps *domain.PriceSeries, source string, from, to time.Time) (int, error) {
	fetchedAt := time.Now().Unix()
	written := 0

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR REPLACE INTO daily_prices (symbol, date, adj_close) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for i, d := range ps.Dates {
			date := d.Format(time.DateOnly)
			for j, symbol := range ps.Symbols {
				p := ps.Prices[i][j]
				if math.IsNaN(p) {
					continue
				}
				if _, err := stmt.Exec(symbol, date, p); err != nil {
					return fmt.Errorf("failed to store price for %s on %s: %w", symbol, date, err)
				}
				written++
			}
		}

		for _, symbol := range ps.Symbols {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO symbol_coverage (symbol, first_date, last_date, source, fetched_at)
				VALUES (?, ?, ?, ?, ?)
			`, symbol, domain.TruncateDay(from).Format(time.DateOnly), domain.TruncateDay(to).Format(time.DateOnly), source, fetchedAt)
			if err != nil {
				return fmt.Errorf("failed to store coverage for %s: %w", symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Debug().
		Int("prices", written).
		Int("symbols", len(ps.Symbols)).
		Str("source", source).
		Msg("Stored prices")

	return written, nil
}

// GetObservations returns the cached prices of symbols between from and to
// inclusive, ordered by date.
func (r *Repository) GetObservations(symbols []string, from, to time.Time) ([]domain.Observation, error) {
	if len(symbols) == 0 {
		return []domain.Observation{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	query := fmt.Sprintf(`
		SELECT symbol, date, adj_close FROM daily_prices
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY date, symbol
	`, placeholders)

	args := make([]interface{}, 0, len(symbols)+2)
	for _, s := range symbols {
		args = append(args, s)
	}
	args = append(args, domain.TruncateDay(from).Format(time.DateOnly), domain.TruncateDay(to).Format(time.DateOnly))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Observation, 0)
	for rows.Next() {
		var o domain.Observation
		var date string
		if err := rows.Scan(&o.Symbol, &date, &o.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if o.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("invalid date %q for %s: %w", date, o.Symbol, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
