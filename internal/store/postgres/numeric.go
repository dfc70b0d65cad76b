package postgres

import (
	"fmt"
	"strconv"
)

// Amounts live in NUMERIC(20,0) columns and cross the wire as text so the
// full uint64 range survives the round trip.

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: parse amount %q: %w", s, err)
	}
	return v, nil
}
