package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/modules/runs"
	testingpkg "github.com/aristath/frontier/internal/testing"
)

func setup(t *testing.T) (*runs.Repository, chi.Router) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "runs")
	t.Cleanup(cleanup)

	repo := runs.NewRepository(db.Conn(), zerolog.Nop())
	router := chi.NewRouter()
	router.Route("/api", NewHandler(repo, zerolog.Nop()).RegisterRoutes)
	return repo, router
}

func get(router chi.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetRun(t *testing.T) {
	repo, router := setup(t)

	id, err := repo.Save(runs.KindFrontier, map[string]interface{}{"points": 3})
	require.NoError(t, err)

	rec := get(router, "/api/runs/"+id)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			ID     string                 `json:"id"`
			Kind   string                 `json:"kind"`
			Result map[string]interface{} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Data.ID)
	assert.Equal(t, runs.KindFrontier, resp.Data.Kind)
	assert.Equal(t, float64(3), resp.Data.Result["points"])

	rec = get(router, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns(t *testing.T) {
	repo, router := setup(t)

	for _, kind := range []string{runs.KindOptimize, runs.KindBacktest, runs.KindBacktest} {
		_, err := repo.Save(kind, map[string]interface{}{})
		require.NoError(t, err)
	}

	tests := []struct {
		path  string
		count int
	}{
		{"/api/runs", 3},
		{"/api/runs?kind=backtest", 2},
		{"/api/runs?limit=1", 1},
		{"/api/runs?limit=bogus", 3},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(router, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp struct {
				Data struct {
					Count int        `json:"count"`
					Runs  []runs.Run `json:"runs"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.count, resp.Data.Count)
			assert.Len(t, resp.Data.Runs, tt.count)
		})
	}
}
