// Package runs persists computed results so they can be fetched again by id.
package runs

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/frontier/internal/domain"
)

// Run kinds
const (
	KindOptimize = "optimize"
	KindFrontier = "frontier"
	KindBacktest = "backtest"
	KindSimulate = "simulate"
)

// Run is a stored result. Payload holds the msgpack encoding of the result.
type Run struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Payload   []byte    `json:"-"`
}

// Decode unmarshals the payload into v.
func (r *Run) Decode(v interface{}) error {
	if err := msgpack.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s run %s: %w", r.Kind, r.ID, err)
	}
	return nil
}

// Document decodes the payload into generic maps and slices for re-encoding
// as JSON. Non-finite floats, which JSON cannot represent, become nil.
func (r *Run) Document() (interface{}, error) {
	var doc interface{}
	if err := r.Decode(&doc); err != nil {
		return nil, err
	}
	return finite(doc), nil
}

func finite(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil
		}
	case float32:
		if math.IsInf(float64(t), 0) || math.IsNaN(float64(t)) {
			return nil
		}
	case map[string]interface{}:
		for k, e := range t {
			t[k] = finite(e)
		}
	case []interface{}:
		for i, e := range t {
			t[i] = finite(e)
		}
	}
	return v
}

// Repository stores runs in the runs database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Save encodes payload and stores it under a new id.
func (r *Repository) Save(kind string, payload interface{}) (string, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s run: %w", kind, err)
	}

	id := uuid.New().String()
	_, err = r.db.Exec(
		"INSERT INTO runs (id, kind, payload, created_at) VALUES (?, ?, ?, ?)",
		id, kind, data, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store %s run: %w", kind, err)
	}

	r.log.Debug().Str("id", id).Str("kind", kind).Int("bytes", len(data)).Msg("Saved run")
	return id, nil
}

// Get returns the run with id, or domain.ErrNotFound.
func (r *Repository) Get(id string) (*Run, error) {
	var run Run
	var createdAt int64
	err := r.db.QueryRow("SELECT id, kind, payload, created_at FROM runs WHERE id = ?", id).
		Scan(&run.ID, &run.Kind, &run.Payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &run, nil
}

// List returns up to limit runs, newest first. An empty kind lists every kind.
func (r *Repository) List(kind string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, kind, created_at FROM runs"
	args := []interface{}{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := make([]Run, 0)
	for rows.Next() {
		var run Run
		var createdAt int64
		if err := rows.Scan(&run.ID, &run.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, run)
	}
	return out, rows.Err()
}

// Delete removes runs created before the given time. Returns the number removed.
func (r *Repository) Delete(before time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM runs WHERE created_at < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return res.RowsAffected()
}
