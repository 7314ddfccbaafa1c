package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cryptoRateWatch/internal/domain"
)

// PositionCSVHeader is the expected header of a position seed file.
var PositionCSVHeader = []string{"instrument", "quantity", "entry_price", "side"}

// PositionRow is one raw data row of a position seed file.
type PositionRow struct {
	Line       int // 1-based line number in the file
	Instrument string
	Quantity   string
	EntryPrice string
	Side       string
}

// RowError reports a row that could not be read.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ReadPositionRows reads a position seed file. Malformed rows are returned as RowErrors and
// skipped; a missing or wrong header fails the whole read.
func ReadPositionRows(r io.Reader) ([]PositionRow, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("position file is empty: %w", domain.ErrValidation)
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if !headerMatches(header) {
		return nil, nil, fmt.Errorf("unexpected header %v, want %v: %w", header, PositionCSVHeader, domain.ErrValidation)
	}

	var rows []PositionRow
	var rowErrs []RowError
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrs = append(rowErrs, RowError{Line: parseErr.Line, Err: err})
				continue
			}
			return rows, rowErrs, fmt.Errorf("read positions: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(PositionCSVHeader) {
			rowErrs = append(rowErrs, RowError{Line: line, Err: fmt.Errorf("expected %d fields, got %d: %w", len(PositionCSVHeader), len(record), domain.ErrValidation)})
			continue
		}
		rows = append(rows, PositionRow{
			Line:       line,
			Instrument: strings.TrimSpace(record[0]),
			Quantity:   strings.TrimSpace(record[1]),
			EntryPrice: strings.TrimSpace(record[2]),
			Side:       strings.TrimSpace(record[3]),
		})
	}
	return rows, rowErrs, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(PositionCSVHeader) {
		return false
	}
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), PositionCSVHeader[i]) {
			return false
		}
	}
	return true
}

// WriteQuotes writes quotes as CSV with the observation time on every row.
func WriteQuotes(w io.Writer, quotes []domain.Quote, observedAt time.Time) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"observed_at", "symbol", "price"}); err != nil {
		return err
	}
	ts := observedAt.UTC().Format(time.RFC3339)
	for _, q := range quotes {
		if err := writer.Write([]string{ts, q.Symbol, q.Price.String()}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteQuotesToCSV creates filename and writes quotes into it.
func WriteQuotesToCSV(quotes []domain.Quote, observedAt time.Time, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteQuotes(file, quotes, observedAt); err != nil {
		return err
	}
	return file.Close()
}
