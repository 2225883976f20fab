package charts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
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

func newTestService(loader PriceLoader) *Service {
	log := zerolog.Nop()
	return NewService(loader, optimization.NewRiskModelBuilder(nil, 252, log), optimization.NewMVOptimizer(log), log)
}

func TestAggregate(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	columns := [][]float64{{1, 3, 10}, {2, 2, 4}}

	tests := []struct {
		name       string
		groupBy    string
		wantLabels []string
		wantValues [][]float64
	}{
		{"daily", "day", []string{"2024-01-30", "2024-01-31", "2024-02-01"}, columns},
		{"weekly", "week", []string{"2024-W05"}, [][]float64{{14.0 / 3}, {8.0 / 3}}},
		{"monthly", "month", []string{"2024-01", "2024-02"}, [][]float64{{2, 10}, {2, 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, values := Aggregate(dates, columns, tt.groupBy)
			assert.Equal(t, tt.wantLabels, labels)
			require.Len(t, values, len(tt.wantValues))
			for j := range values {
				assert.InDeltaSlice(t, tt.wantValues[j], values[j], 1e-12)
			}
		})
	}
}

func TestRangeStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		rangeStr string
		want     *time.Time
	}{
		{"1M", ptr(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))},
		{"1Y", ptr(time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC))},
		{"10Y", ptr(time.Date(2014, 6, 15, 12, 0, 0, 0, time.UTC))},
		{"all", nil},
		{"", nil},
		{"2W", nil},
	}

	for _, tt := range tests {
		t.Run(tt.rangeStr, func(t *testing.T) {
			assert.Equal(t, tt.want, RangeStart(tt.rangeStr, now))
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestService_GetPriceChart(t *testing.T) {
	tickers := []string{"AAA", "BBB"}
	fixture := testingpkg.NewPriceFixture(tickers, 20)

	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, tickers, (*time.Time)(nil), (*time.Time)(nil)).Return(fixture, nil)

	svc := newTestService(loader)
	result, err := svc.GetPriceChart(context.Background(), tickers, "all", "day")
	require.NoError(t, err)

	require.Len(t, result, 2)
	for _, symbol := range tickers {
		points := result[symbol]
		require.Len(t, points, 20)
		assert.InDelta(t, 100.0, points[0].Value, 1e-9)
		assert.Equal(t, fixture.Dates[0].Format(time.DateOnly), points[0].Time)
	}
	loader.AssertExpectations(t)
}

func TestService_GetAssets(t *testing.T) {
	tickers := []string{"AAA", "BBB", "CCC"}
	fixture := testingpkg.NewPriceFixture(tickers, 60)

	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, tickers, mock.Anything, (*time.Time)(nil)).Return(fixture, nil)

	svc := newTestService(loader)
	assets, err := svc.GetAssets(context.Background(), tickers, "1Y")
	require.NoError(t, err)

	require.Len(t, assets, 3)
	for i, a := range assets {
		assert.Equal(t, tickers[i], a.Symbol)
		assert.Greater(t, a.Volatility, 0.0)
	}
}

func TestService_LoadError(t *testing.T) {
	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrMissingDependency)

	svc := newTestService(loader)

	_, err := svc.GetPricesPNG(context.Background(), []string{"AAA"}, "")
	assert.True(t, errors.Is(err, domain.ErrMissingDependency))

	_, err = svc.GetFrontierPNG(context.Background(), []string{"AAA"}, "", optimization.FrontierOptions{Points: 5})
	assert.ErrorIs(t, err, domain.ErrMissingDependency)
}

func TestService_GetFrontierPNG(t *testing.T) {
	tickers := []string{"AAA", "BBB", "CCC"}
	fixture := testingpkg.NewPriceFixture(tickers, 120)

	loader := new(MockPriceLoader)
	loader.On("Load", mock.Anything, tickers, mock.Anything, mock.Anything).Return(fixture, nil)

	svc := newTestService(loader)
	png, err := svc.GetFrontierPNG(context.Background(), tickers, "", optimization.FrontierOptions{Points: 10})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
