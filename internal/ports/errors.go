package ports

import (
	"errors"

	"cryptoRateWatch/internal/domain"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Domain errors, re-exported so adapters need only this package.
	ErrValidation    = domain.ErrValidation
	ErrAlreadyClosed = domain.ErrAlreadyClosed

	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Pipeline Errors
	ErrTransientIngestion = errors.New("ingestion cycle failed")
	ErrDispatch           = errors.New("event subscriber failed")

	// Market Data Errors
	ErrExchangeUnavailable = errors.New("market data source is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the market data source")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrDecodeFailed        = errors.New("failed to decode market data")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)
