package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	testingpkg "github.com/aristath/frontier/internal/testing"
)

type MockPriceLoader struct {
	mock.Mock
}

func (m *MockPriceLoader) Load(ctx context.Context, tickers []string, start, end *time.Time) (*domain.PriceSeries, error) {
	args := m.Called(ctx, tickers, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceSeries), args.Error(1)
}

func newRouter(loader charts.PriceLoader) chi.Router {
	log := zerolog.Nop()
	svc := charts.NewService(loader, optimization.NewRiskModelBuilder(nil, 252, log), optimization.NewMVOptimizer(log), log)
	router := chi.NewRouter()
	router.Route("/api", NewHandler(svc, 8, log).RegisterRoutes)
	return router
}

func get(router chi.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetPrices(t *testing.T) {
	tickers := []string{"AAA", "BBB"}
	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, tickers, mock.Anything, mock.Anything).
		Return(testingpkg.NewPriceFixture(tickers, 30), nil)
	router := newRouter(loader)

	t.Run("png", func(t *testing.T) {
		rec := get(router, "/api/charts/prices?tickers=aaa,bbb")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
	})

	t.Run("json", func(t *testing.T) {
		rec := get(router, "/api/charts/prices?tickers=AAA,BBB&format=json&range=1Y")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var data map[string][]charts.ChartDataPoint
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
		require.Len(t, data["AAA"], 30)
		assert.InDelta(t, 100.0, data["AAA"][0].Value, 1e-9)
		assert.Equal(t, testingpkg.FixtureStart.Format(time.DateOnly), data["BBB"][0].Time)
	})

	loader.AssertExpectations(t)
}

func TestHandleGetPrices_Errors(t *testing.T) {
	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, []string{"ZZZ"}, mock.Anything, mock.Anything).
		Return(nil, domain.ErrInsufficientHistory)
	router := newRouter(loader)

	rec := get(router, "/api/charts/prices")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(router, "/api/charts/prices?tickers=zzz")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient")
}

func TestHandleGetFrontier(t *testing.T) {
	tickers := []string{"AAA", "BBB", "CCC"}
	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, tickers, mock.Anything, mock.Anything).
		Return(testingpkg.NewPriceFixture(tickers, 120), nil)
	router := newRouter(loader)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"default points", "tickers=AAA,BBB,CCC", http.StatusOK},
		{"explicit points and short", "tickers=AAA,BBB,CCC&points=5&short=true", http.StatusOK},
		{"bad points", "tickers=AAA,BBB,CCC&points=0", http.StatusBadRequest},
		{"bad short", "tickers=AAA,BBB,CCC&short=maybe", http.StatusBadRequest},
		{"no tickers", "points=5", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(router, "/api/charts/frontier?"+tt.query)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
			}
		})
	}
}
