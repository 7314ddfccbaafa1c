package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
)

// Append saves a new rate sample.
func (r *Repository) Append(ctx context.Context, sample domain.RateSample) error {
	const query = `INSERT INTO rate_samples (symbol, price, observed_at) VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, sample.Symbol, sample.Price, sample.ObservedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert rate sample for symbol %s: %w: %w", sample.Symbol, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Rate sample appended", map[string]interface{}{"symbol": sample.Symbol, "price": sample.Price.String()})
	return nil
}

// OldestSince returns the earliest sample for symbol with observed_at >= since.
// Equal timestamps resolve to the lowest id, i.e. insertion order.
func (r *Repository) OldestSince(ctx context.Context, symbol string, since time.Time) (domain.RateSample, bool, error) {
	const query = `
	SELECT symbol, price, observed_at
	FROM rate_samples
	WHERE symbol = ? AND observed_at >= ?
	ORDER BY observed_at ASC, id ASC
	LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, symbol, since.UTC().UnixNano())
	sample, err := scanRateSample(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RateSample{}, false, nil
		}
		return domain.RateSample{}, false, fmt.Errorf("failed to query oldest rate for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return sample, true, nil
}

// Recent returns up to limit samples for symbol, newest first.
func (r *Repository) Recent(ctx context.Context, symbol string, limit int) ([]domain.RateSample, error) {
	const query = `
	SELECT symbol, price, observed_at
	FROM rate_samples
	WHERE symbol = ?
	ORDER BY observed_at DESC, id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent rates for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	samples := make([]domain.RateSample, 0, limit)
	for rows.Next() {
		sample, err := scanRateSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate sample during Recent: %w", err)
		}
		samples = append(samples, sample)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate sample rows: %w", err)
	}
	return samples, nil
}

// PruneBefore deletes samples observed strictly before cutoff.
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM rate_samples WHERE observed_at < ?`

	result, err := r.db.ExecContext(ctx, query, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate samples before %s: %w: %w", cutoff.Format(time.RFC3339), ports.ErrDeleteFailed, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for rate prune: %w", err)
	}
	return removed, nil
}

func scanRateSample(s scanner) (domain.RateSample, error) {
	var sample domain.RateSample
	var observedAt int64
	if err := s.Scan(&sample.Symbol, &sample.Price, &observedAt); err != nil {
		return domain.RateSample{}, err // Handle sql.ErrNoRows in the caller
	}
	sample.ObservedAt = time.Unix(0, observedAt).UTC()
	return sample, nil
}
