package prices

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
	testingpkg "github.com/aristath/frontier/internal/testing"
)

var fixedNow = time.Date(2024, 6, 14, 18, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, source domain.PriceSource) *Service {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "prices")
	t.Cleanup(cleanup)

	svc := NewService(source, "mock", NewRepository(db.Conn(), zerolog.Nop()), zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestService_Window(t *testing.T) {
	svc := NewService(nil, "", nil, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }

	from, to, err := svc.Window(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 6, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), to)

	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	_, _, err = svc.Window(&start, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestService_NoSource(t *testing.T) {
	svc := NewService(nil, "", nil, zerolog.Nop())

	_, err := svc.Load(context.Background(), []string{"AAA"}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrMissingDependency)

	_, err = svc.Refresh(context.Background(), []string{"AAA"})
	assert.ErrorIs(t, err, domain.ErrMissingDependency)
}

func TestService_LoadFetchesThenServesFromCache(t *testing.T) {
	tickers := []string{"AAA", "BBB"}
	fixture := testingpkg.NewPriceFixture(tickers, 30)
	start := fixture.Dates[0]
	end := fixture.Dates[29]

	source := new(testingpkg.MockPriceSource)
	source.On("FetchPrices", mock.Anything, tickers, start, end).Return(fixture, nil).Once()

	svc := newTestService(t, source)

	ps, err := svc.Load(context.Background(), tickers, &start, &end)
	require.NoError(t, err)
	assert.Equal(t, tickers, ps.Symbols)
	assert.Equal(t, fixture.Dates, ps.Dates)
	assert.InDeltaSlice(t, fixture.Prices[10], ps.Prices[10], 1e-12)

	// Second load inside the cached range does not hit the source
	inner := fixture.Dates[5]
	ps, err = svc.Load(context.Background(), tickers, &inner, &end)
	require.NoError(t, err)
	assert.Equal(t, 25, ps.Len())

	source.AssertExpectations(t)
}

func TestService_LoadFetchesOnlyMissingSymbols(t *testing.T) {
	fixture := testingpkg.NewPriceFixture([]string{"AAA", "BBB"}, 10)
	start, end := fixture.Dates[0], fixture.Dates[9]

	onlyA := &domain.PriceSeries{Symbols: []string{"AAA"}, Dates: fixture.Dates, Prices: make([][]float64, 10)}
	onlyB := &domain.PriceSeries{Symbols: []string{"BBB"}, Dates: fixture.Dates, Prices: make([][]float64, 10)}
	for i, row := range fixture.Prices {
		onlyA.Prices[i] = []float64{row[0]}
		onlyB.Prices[i] = []float64{row[1]}
	}

	source := new(testingpkg.MockPriceSource)
	source.On("FetchPrices", mock.Anything, []string{"AAA"}, start, end).Return(onlyA, nil).Once()
	source.On("FetchPrices", mock.Anything, []string{"BBB"}, start, end).Return(onlyB, nil).Once()

	svc := newTestService(t, source)

	_, err := svc.Load(context.Background(), []string{"AAA"}, &start, &end)
	require.NoError(t, err)

	ps, err := svc.Load(context.Background(), []string{"AAA", "BBB"}, &start, &end)
	require.NoError(t, err)
	assert.Equal(t, 10, ps.Len())
	assert.Equal(t, []string{"AAA", "BBB"}, ps.Symbols)

	source.AssertExpectations(t)
}

func TestService_LoadAlignsDates(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}
	gappy, err := domain.NewPriceSeries([]string{"AAA", "BBB"}, dates, [][]float64{
		{10, 20},
		{11, math.NaN()},
		{12, 22},
	})
	require.NoError(t, err)

	source := new(testingpkg.MockPriceSource)
	source.On("FetchPrices", mock.Anything, []string{"AAA", "BBB"}, dates[0], dates[2]).Return(gappy, nil)

	svc := newTestService(t, source)
	ps, err := svc.Load(context.Background(), []string{"AAA", "BBB"}, &dates[0], &dates[2])
	require.NoError(t, err)
	assert.Equal(t, []time.Time{dates[0], dates[2]}, ps.Dates)
}

func TestService_LoadSourceError(t *testing.T) {
	source := new(testingpkg.MockPriceSource)
	source.On("FetchPrices", mock.Anything, []string{"AAA"}, mock.Anything, mock.Anything).
		Return(nil, errors.New("upstream down"))

	svc := newTestService(t, source)
	_, err := svc.Load(context.Background(), []string{"AAA"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")

	_, err = svc.Load(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPriceSeries)
}

func TestService_Refresh(t *testing.T) {
	tickers := []string{"AAA"}
	fixture := testingpkg.NewPriceFixture(tickers, 5)
	from := time.Date(2019, 6, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	source := new(testingpkg.MockPriceSource)
	source.On("FetchPrices", mock.Anything, tickers, from, to).Return(fixture, nil).Twice()

	svc := newTestService(t, source)

	written, err := svc.Refresh(context.Background(), tickers)
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	written, err = svc.Refresh(context.Background(), tickers)
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	coverage, err := svc.Coverage()
	require.NoError(t, err)
	require.Len(t, coverage, 1)
	assert.Equal(t, "mock", coverage[0].Source)
	assert.Equal(t, from, coverage[0].FirstDate)
	assert.Equal(t, to, coverage[0].LastDate)

	source.AssertExpectations(t)
}

func TestService_WithoutCache(t *testing.T) {
	tickers := []string{"AAA", "BBB"}
	fixture := testingpkg.NewPriceFixture(tickers, 8)

	source := new(testingpkg.MockPriceSource)
	source.On("FetchPrices", mock.Anything, tickers, mock.Anything, mock.Anything).Return(fixture, nil).Twice()

	svc := NewService(source, "mock", nil, zerolog.Nop())
	for i := 0; i < 2; i++ {
		ps, err := svc.Load(context.Background(), tickers, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 8, ps.Len())
	}
	source.AssertExpectations(t)

	_, err := svc.Refresh(context.Background(), tickers)
	assert.ErrorIs(t, err, domain.ErrMissingDependency)
}
