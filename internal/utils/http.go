package utils

import (
	"context"
	"errors"
	"net/http"

	"github.com/aristath/frontier/internal/domain"
)

// StatusForError maps domain errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidPriceSeries),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrInsufficientHistory):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMissingDependency):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
