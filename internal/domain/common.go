package domain

import (
	"fmt"
	"strings"
)

// Side represents the direction of a position (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide converts a case-insensitive side string into a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Buy):
		return Buy, nil
	case string(Sell):
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q: %w", s, ErrValidation)
	}
}

// Multiplier returns +1 for Buy and -1 for Sell.
func (s Side) Multiplier() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

// PositionStatus represents the status of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)
