package testing

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/frontier/internal/domain"
)

// MockPriceSource is a testify mock implementing domain.PriceSource
type MockPriceSource struct {
	mock.Mock
}

// FetchPrices records the call and returns the configured table or error
func (m *MockPriceSource) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceSeries, error) {
	args := m.Called(ctx, symbols, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceSeries), args.Error(1)
}
