package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
)

const positionColumns = `id, symbol, quantity, entry_price, side, status, created_at, closed_at`

// Create saves a new position.
func (r *Repository) Create(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO positions (id, symbol, quantity, entry_price, side, status, created_at, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var closedAt sql.NullTime
	if pos.ClosedAt != nil {
		closedAt = sql.NullTime{Time: pos.ClosedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, pos.Quantity, pos.EntryPrice, string(pos.Side), string(pos.Status), pos.CreatedAt.UTC(), closedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("position %s: %w", pos.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert position for symbol %s: %w: %w", pos.Symbol, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	return nil
}

// FindByID retrieves a position by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`

	pos, err := scanPosition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("position %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query position by ID %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return pos, nil
}

// OpenPositionsFor returns every open position in symbol ordered by creation time.
func (r *Repository) OpenPositionsFor(ctx context.Context, symbol string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
	WHERE symbol = ? AND status = ?
	ORDER BY created_at ASC, rowid ASC`

	return r.queryPositions(ctx, "OpenPositionsFor", query, symbol, string(domain.StatusOpen))
}

// ListOpen returns every open position ordered by creation time.
func (r *Repository) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
	WHERE status = ?
	ORDER BY created_at ASC, rowid ASC`

	return r.queryPositions(ctx, "ListOpen", query, string(domain.StatusOpen))
}

// ClosePosition marks a position as closed inside a transaction so the status check and the update
// cannot interleave with another close.
func (r *Repository) ClosePosition(ctx context.Context, id string, now time.Time) (*domain.Position, error) {
	op := "ClosePosition"
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w: %w", op, ports.ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`
	pos, err := scanPosition(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("position %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to load position %s: %w: %w", op, id, ports.ErrQueryFailed, err)
	}

	if err := pos.Close(now); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE positions SET status = ?, closed_at = ? WHERE id = ? AND status = ?`,
		string(domain.StatusClosed), pos.ClosedAt.UTC(), id, string(domain.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to update position %s: %w: %w", op, id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get rows affected for position %s: %w", op, id, err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("close position %s: %w", id, ports.ErrAlreadyClosed)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: failed to commit close of position %s: %w: %w", op, id, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Position closed", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return pos, nil
}

func (r *Repository) queryPositions(ctx context.Context, op, query string, args ...interface{}) ([]*domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query positions: %w: %w", op, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	skipped := 0
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			// A corrupt row only hides that position; the rest are still returned.
			skipped++
			r.logger.Warn(ctx, op+": skipping unreadable position row", map[string]interface{}{"error": err.Error()})
			continue
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating position rows: %w", op, err)
	}
	if skipped > 0 {
		r.logger.Warn(ctx, op+" returned partial result", map[string]interface{}{"returned": len(positions), "skipped": skipped})
	}
	return positions, nil
}

// scanPosition scans a row into a domain.Position, enforcing the persisted invariants.
func scanPosition(s scanner) (*domain.Position, error) {
	var (
		id, symbol, side, status string
		quantity, entryPrice     decimal.Decimal
		createdAt                time.Time
		closedAt                 sql.NullTime
	)
	if err := s.Scan(&id, &symbol, &quantity, &entryPrice, &side, &status, &createdAt, &closedAt); err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}

	var closedPtr *time.Time
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		closedPtr = &t
	}
	return domain.RestorePosition(id, symbol, quantity, entryPrice,
		domain.Side(side), domain.PositionStatus(status), createdAt.UTC(), closedPtr)
}
