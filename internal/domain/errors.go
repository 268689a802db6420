package domain

import "errors"

var (
	// ErrEncodingFailed is returned when text could not be turned into an embedding
	ErrEncodingFailed = errors.New("embedding encode failed")

	// ErrDimensionMismatch is returned when two compared vectors differ in length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCatalogUnavailable is returned when the product catalog store cannot be read
	ErrCatalogUnavailable = errors.New("product catalog unavailable")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnsafeInput is returned when customer text looks like an injection attempt
	ErrUnsafeInput = errors.New("unsafe input detected")
)
