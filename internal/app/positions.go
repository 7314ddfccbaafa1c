package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
	"cryptoRateWatch/internal/utils"
)

// PositionService manages the position lifecycle: open, close, list and on-demand PnL.
type PositionService struct {
	logger    ports.Logger
	positions ports.PositionStore
	now       func() time.Time
}

// NewPositionService creates a PositionService. now may be nil, in which case time.Now is used.
func NewPositionService(logger ports.Logger, positions ports.PositionStore, now func() time.Time) (*PositionService, error) {
	if logger == nil || positions == nil {
		return nil, fmt.Errorf("missing required dependencies for PositionService")
	}
	if now == nil {
		now = time.Now
	}
	return &PositionService{logger: logger, positions: positions, now: now}, nil
}

// OpenPosition validates and stores a new open position.
func (s *PositionService) OpenPosition(ctx context.Context, symbol string, quantity, entryPrice decimal.Decimal, side domain.Side) (*domain.Position, error) {
	pos, err := domain.NewPosition(symbol, quantity, entryPrice, side, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		return nil, fmt.Errorf("store position: %w", err)
	}
	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"quantity":   pos.Quantity.String(),
		"entryPrice": pos.EntryPrice.String(),
		"side":       pos.Side,
	})
	return pos, nil
}

// ClosePosition closes the position with id. It reports false without error when no such
// position exists and returns ErrAlreadyClosed when it was closed before.
func (s *PositionService) ClosePosition(ctx context.Context, id string) (bool, error) {
	pos, err := s.positions.ClosePosition(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info(ctx, "Position closed", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	return true, nil
}

// ListOpen returns every open position.
func (s *PositionService) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	return s.positions.ListOpen(ctx)
}

// ProfitLoss computes the PnL of position id at currentPrice without publishing anything.
func (s *PositionService) ProfitLoss(ctx context.Context, id string, currentPrice decimal.Decimal) (domain.RevaluationResult, error) {
	pos, err := s.positions.FindByID(ctx, id)
	if err != nil {
		return domain.RevaluationResult{}, err
	}
	return pos.Revalue(currentPrice, s.now()), nil
}

// LoadReport summarises a position seed load.
type LoadReport struct {
	Loaded  int
	Skipped []utils.RowError
}

// LoadPositions opens every valid row of a position seed file. Invalid rows are skipped and
// reported with their line numbers.
func (s *PositionService) LoadPositions(ctx context.Context, r io.Reader) (LoadReport, error) {
	op := "LoadPositions"
	var report LoadReport

	rows, rowErrs, err := utils.ReadPositionRows(r)
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}
	report.Skipped = append(report.Skipped, rowErrs...)

	for _, row := range rows {
		if err := s.loadRow(ctx, row); err != nil {
			report.Skipped = append(report.Skipped, utils.RowError{Line: row.Line, Err: err})
			continue
		}
		report.Loaded++
	}

	for _, skipped := range report.Skipped {
		s.logger.Warn(ctx, op+": row skipped", map[string]interface{}{"line": skipped.Line, "error": skipped.Err.Error()})
	}
	s.logger.Info(ctx, op+" completed", map[string]interface{}{"loaded": report.Loaded, "skipped": len(report.Skipped)})
	return report, nil
}

func (s *PositionService) loadRow(ctx context.Context, row utils.PositionRow) error {
	quantity, err := decimal.NewFromString(row.Quantity)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", row.Quantity, ports.ErrValidation)
	}
	entryPrice, err := decimal.NewFromString(row.EntryPrice)
	if err != nil {
		return fmt.Errorf("invalid entry price %q: %w", row.EntryPrice, ports.ErrValidation)
	}
	side, err := domain.ParseSide(row.Side)
	if err != nil {
		return err
	}
	_, err = s.OpenPosition(ctx, row.Instrument, quantity, entryPrice, side)
	return err
}

// LoadPositionsFile loads a seed file from path. A missing file is not an error.
func (s *PositionService) LoadPositionsFile(ctx context.Context, path string) (LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info(ctx, "Position seed file not found, skipping", map[string]interface{}{"path": path})
			return LoadReport{}, nil
		}
		return LoadReport{}, fmt.Errorf("open position seed file: %w", err)
	}
	defer f.Close()
	return s.LoadPositions(ctx, f)
}
