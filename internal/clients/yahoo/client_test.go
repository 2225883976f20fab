package yahoo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 2, 1, 14, 30, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestClient_FetchPrices(t *testing.T) {
	client := NewClient(zerolog.Nop())
	var requested []string
	client.fetch = func(symbol string, start, end time.Time) ([]bar, error) {
		requested = append(requested, symbol)
		switch symbol {
		case "SPY":
			return []bar{{day(0), 400}, {day(1), 401}, {day(2), 0}}, nil
		default:
			return []bar{{day(1), 90}, {day(2), 91}}, nil
		}
	}

	ps, err := client.FetchPrices(context.Background(), []string{"SPY", "TLT"}, day(0), day(2))
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "TLT"}, requested)
	assert.Equal(t, []string{"SPY", "TLT"}, ps.Symbols)
	require.Equal(t, 3, ps.Len())
	assert.Equal(t, domain.TruncateDay(day(0)), ps.Dates[0])
	assert.Equal(t, []float64{401, 90}, ps.Prices[1])

	complete := ps.DropIncomplete()
	assert.Equal(t, 1, complete.Len())
}

func TestClient_FetchPricesError(t *testing.T) {
	client := NewClient(zerolog.Nop())
	client.fetch = func(symbol string, start, end time.Time) ([]bar, error) {
		return nil, errors.New("rate limited")
	}

	_, err := client.FetchPrices(context.Background(), []string{"SPY"}, day(0), day(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPY")
}

func TestClient_FetchPricesCancelled(t *testing.T) {
	client := NewClient(zerolog.Nop())
	client.fetch = func(symbol string, start, end time.Time) ([]bar, error) {
		t.Fatal("fetch should not be called")
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchPrices(ctx, []string{"SPY"}, day(0), day(1))
	assert.ErrorIs(t, err, context.Canceled)
}
