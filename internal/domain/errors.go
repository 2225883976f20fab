package domain

import "errors"

var (
	// ErrMissingDependency is returned when a required external capability
	// (for example the market data source) is not available. It is not retried.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrInvalidPriceSeries is returned when a price table violates its invariants
	ErrInvalidPriceSeries = errors.New("invalid price series")

	// ErrDimensionMismatch is returned when vectors and matrices disagree on asset count
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInsufficientHistory is returned when there are too few return rows for the request
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInvalidRequest is returned for malformed API or CLI input
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned by repositories when a record does not exist
	ErrNotFound = errors.New("not found")
)
