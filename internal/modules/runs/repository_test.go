package runs

import (
	"database/sql"
	"io/fs"
	"math"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/embedded"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	schema, err := fs.ReadFile(embedded.Schemas, "schemas/runs_schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

type payload struct {
	Weights []float64 `msgpack:"weights"`
	Sharpe  float64   `msgpack:"sharpe"`
}

func TestRepository_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	in := payload{Weights: []float64{0.25, 0.75}, Sharpe: 1.2}
	id, err := repo.Save(KindOptimize, in)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := repo.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, KindOptimize, run.Kind)
	assert.WithinDuration(t, time.Now(), run.CreatedAt, time.Minute)

	var out payload
	require.NoError(t, run.Decode(&out))
	assert.Equal(t, in, out)
}

func TestRepository_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.Get("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_List(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	var ids []string
	for _, kind := range []string{KindOptimize, KindBacktest, KindOptimize, KindSimulate} {
		id, err := repo.Save(kind, payload{Sharpe: 1})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	tests := []struct {
		name  string
		kind  string
		limit int
		want  []string
	}{
		{"all kinds newest first", "", 0, []string{ids[3], ids[2], ids[1], ids[0]}},
		{"filtered by kind", KindOptimize, 10, []string{ids[2], ids[0]}},
		{"limited", "", 2, []string{ids[3], ids[2]}},
		{"unknown kind", "frontier", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(tt.kind, tt.limit)
			require.NoError(t, err)
			got := make([]string, 0, len(list))
			for _, r := range list {
				got = append(got, r.ID)
				assert.Nil(t, r.Payload)
			}
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	_, err := db.Exec("INSERT INTO runs (id, kind, payload, created_at) VALUES ('old', 'optimize', x'80', ?)",
		time.Now().Add(-48*time.Hour).Unix())
	require.NoError(t, err)
	newID, err := repo.Save(KindFrontier, payload{})
	require.NoError(t, err)

	removed, err := repo.Delete(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.Get("old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.Get(newID)
	assert.NoError(t, err)
}

func TestRun_Document(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	id, err := repo.Save(KindOptimize, map[string]interface{}{
		"sharpe":  math.Inf(-1),
		"weights": []float64{0.5, 0.5},
		"nested":  map[string]interface{}{"vol": math.NaN(), "ok": true},
	})
	require.NoError(t, err)

	run, err := repo.Get(id)
	require.NoError(t, err)
	doc, err := run.Document()
	require.NoError(t, err)

	m, ok := doc.(map[string]interface{})
	require.True(t, ok)
	assert.Nil(t, m["sharpe"])
	assert.Equal(t, []interface{}{0.5, 0.5}, m["weights"])
	nested := m["nested"].(map[string]interface{})
	assert.Nil(t, nested["vol"])
	assert.Equal(t, true, nested["ok"])
}
