package llm

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parseTable parses CSV text into a header and data rows. It requires a
// rectangular table with at least one data row.
func parseTable(text string) (header []string, rows [][]string, err error) {
	r := csv.NewReader(strings.NewReader(text))
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("csv has no data rows")
	}
	return records[0], records[1:], nil
}

// validateHeader checks that transcribed column names are SQL-safe
// identifiers and unique (case-insensitive).
func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("column %q is not an SQL-safe identifier", name)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("duplicate column %q", name)
		}
		seen[key] = true
	}
	return nil
}

// isNull reports whether a cell is a missing value: empty or the
// reserved null token.
func isNull(cell, nullToken string) bool {
	return cell == "" || cell == nullToken
}

// isNumeric reports whether a cell parses as a number.
func isNumeric(cell string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	return err == nil
}

// writeTable serializes a table back to CSV with every field quoted and
// nulls written as the null token, matching the strict transcription
// profile.
func writeTable(header []string, rows [][]string, nullToken string) string {
	var b strings.Builder
	writeQuotedRow(&b, header)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if isNull(cell, nullToken) {
				cells[i] = nullToken
			} else {
				cells[i] = cell
			}
		}
		writeQuotedRow(&b, cells)
	}
	return b.String()
}

func writeQuotedRow(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
