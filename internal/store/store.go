// Package store holds one extraction task's working tables in an
// in-memory SQLite database: the schema-typed accumulator
// (primary_table) and a transient staging table per incoming CSV
// fragment (secondary_table).
package store

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

// Store is the consolidation store for one extraction task. It is not
// safe for concurrent use; the orchestrator confines all mutating
// access to a single goroutine.
type Store struct {
	db        *sql.DB
	dataset   *schema.Dataset
	nullToken string
}

// Open creates a fresh in-memory store with an empty accumulator table
// typed from the dataset columns.
func Open(dataset *schema.Dataset, nullToken string) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A connection pool would hand out separate empty :memory:
	// databases; pin everything to one connection.
	db.SetMaxOpenConns(1)

	defs := make([]string, len(dataset.Columns))
	for i, col := range dataset.Columns {
		defs[i] = fmt.Sprintf("%s %s", schema.QuoteIdent(col.Name), sqliteType(col.Type))
	}
	create := fmt.Sprintf("CREATE TABLE primary_table (\n\t%s\n)", strings.Join(defs, ",\n\t"))
	if _, err := db.Exec(create); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create primary_table: %w", err)
	}

	return &Store{db: db, dataset: dataset, nullToken: nullToken}, nil
}

func sqliteType(t schema.ColumnType) string {
	if t == schema.TypeNumeric {
		return "NUMERIC"
	}
	return "TEXT"
}

// Stage materializes csvText as the staging table secondary_table,
// replacing any previous staging. Column types are inferred
// integer-first, the null token and empty cells load as SQL NULL, and
// rows where every column is null are removed. All failures come back
// as errors, never panics.
func (s *Store) Stage(csvText string) error {
	header, rows, err := readCSV(csvText)
	if err != nil {
		return fmt.Errorf("store: stage: %w", err)
	}
	if len(header) == 0 {
		return fmt.Errorf("store: stage: csv has no columns")
	}

	types := inferTypes(header, rows, s.nullToken)

	if _, err := s.db.Exec("DROP TABLE IF EXISTS csv_read"); err != nil {
		return fmt.Errorf("store: stage: drop csv_read: %w", err)
	}
	if _, err := s.db.Exec("DROP TABLE IF EXISTS secondary_table"); err != nil {
		return fmt.Errorf("store: stage: drop secondary_table: %w", err)
	}

	defs := make([]string, len(header))
	quoted := make([]string, len(header))
	holes := make([]string, len(header))
	for i, name := range header {
		quoted[i] = schema.QuoteIdent(name)
		defs[i] = fmt.Sprintf("%s %s", quoted[i], types[i])
		holes[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE csv_read (%s)", strings.Join(defs, ", "))
	if _, err := s.db.Exec(create); err != nil {
		return fmt.Errorf("store: stage: create csv_read: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO csv_read (%s) VALUES (%s)",
		strings.Join(quoted, ", "), strings.Join(holes, ", "))
	stmt, err := s.db.Prepare(insert)
	if err != nil {
		return fmt.Errorf("store: stage: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(header))
		for i := range header {
			args[i] = s.cellValue(row[i], types[i])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("store: stage: insert row: %w", err)
		}
	}

	// Rebuild the staging table without degenerate (all-null) rows.
	conds := make([]string, len(quoted))
	for i, q := range quoted {
		conds[i] = q + " IS NULL"
	}
	clean := fmt.Sprintf("CREATE TABLE secondary_table AS SELECT * FROM csv_read WHERE NOT (%s)",
		strings.Join(conds, " AND "))
	if _, err := s.db.Exec(clean); err != nil {
		return fmt.Errorf("store: stage: clean staging: %w", err)
	}
	return nil
}

// cellValue converts one CSV cell to a bind parameter of the column's
// inferred type. Nulls become SQL NULL.
func (s *Store) cellValue(cell, colType string) any {
	if cell == "" || cell == s.nullToken {
		return nil
	}
	trimmed := strings.TrimSpace(cell)
	switch colType {
	case "INTEGER":
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return v
		}
	case "REAL":
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v
		}
	}
	return cell
}

// Merge executes the caller-supplied transform command, typically an
// INSERT selecting from secondary_table into primary_table.
func (s *Store) Merge(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("store: merge: empty transform command")
	}
	if _, err := s.db.Exec(command); err != nil {
		return fmt.Errorf("store: merge: %w", err)
	}
	return nil
}

// Finalize reads the whole accumulator out as CSV text. With zero
// accumulated rows the result is just the header line built from the
// dataset column names.
func (s *Store) Finalize() (string, error) {
	names := s.dataset.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = schema.QuoteIdent(n)
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT %s FROM primary_table", strings.Join(quoted, ", ")))
	if err != nil {
		return "", fmt.Errorf("store: finalize: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(names); err != nil {
		return "", fmt.Errorf("store: finalize: write header: %w", err)
	}

	scan := make([]any, len(names))
	for i := range scan {
		scan[i] = new(any)
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return "", fmt.Errorf("store: finalize: scan row: %w", err)
		}
		record := make([]string, len(names))
		for i := range scan {
			record[i] = formatValue(*scan[i].(*any))
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("store: finalize: write row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("store: finalize: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("store: finalize: %w", err)
	}
	return b.String(), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// StagingRowCount reports how many rows survived cleaning in the
// current staging table.
func (s *Store) StagingRowCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM secondary_table").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: staging count: %w", err)
	}
	return n, nil
}

// AccumulatorRowCount reports how many rows the accumulator holds.
func (s *Store) AccumulatorRowCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM primary_table").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: accumulator count: %w", err)
	}
	return n, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// readCSV parses csvText into header and rows, requiring a rectangular
// layout.
func readCSV(text string) ([]string, [][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv")
	}
	return records[0], records[1:], nil
}
