package store

import (
	"strconv"
	"strings"
)

// inferTypes picks a SQLite column type per CSV column: INTEGER when
// every non-null cell parses as a 64-bit integer, REAL when every
// non-null cell parses as a float, TEXT otherwise. Columns with no
// non-null cells load as TEXT.
func inferTypes(header []string, rows [][]string, nullToken string) []string {
	types := make([]string, len(header))
	for col := range header {
		kind := "INTEGER"
		seen := false
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			cell := row[col]
			if cell == "" || cell == nullToken {
				continue
			}
			seen = true
			trimmed := strings.TrimSpace(cell)
			if kind == "INTEGER" {
				if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
					kind = "REAL"
				}
			}
			if kind == "REAL" {
				if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
					kind = "TEXT"
					break
				}
			}
		}
		if !seen {
			kind = "TEXT"
		}
		types[col] = kind
	}
	return types
}
