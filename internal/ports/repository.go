package ports

import (
	"context"
	"time"

	"cryptoRateWatch/internal/domain"
)

// RateHistoryStore is an append-only store of timestamped rate samples.
type RateHistoryStore interface {
	// Append persists a new sample.
	Append(ctx context.Context, sample domain.RateSample) error
	// OldestSince returns the earliest sample for symbol observed at or after since.
	// Ties on the timestamp resolve to the first inserted sample. ok is false when none exists.
	OldestSince(ctx context.Context, symbol string, since time.Time) (sample domain.RateSample, ok bool, err error)
	// Recent returns up to limit samples for symbol, newest first.
	Recent(ctx context.Context, symbol string, limit int) ([]domain.RateSample, error)
	// PruneBefore deletes samples observed strictly before cutoff and returns how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PositionStore defines the interface for storing and retrieving positions.
type PositionStore interface {
	// Create saves a new position.
	Create(ctx context.Context, pos *domain.Position) error
	// FindByID retrieves a position by its ID. Returns ErrNotFound if it does not exist.
	FindByID(ctx context.Context, id string) (*domain.Position, error)
	// OpenPositionsFor returns every open position in symbol, oldest first.
	OpenPositionsFor(ctx context.Context, symbol string) ([]*domain.Position, error)
	// ListOpen returns every open position across instruments, oldest first.
	ListOpen(ctx context.Context) ([]*domain.Position, error)
	// ClosePosition marks the position closed at now. Returns ErrNotFound for an unknown id and
	// ErrAlreadyClosed if it is not open; the stored close time is never overwritten.
	ClosePosition(ctx context.Context, id string, now time.Time) (*domain.Position, error)
}
