// Package schema defines the target dataset schema an extraction
// accumulates into: an ordered list of typed columns plus the free-text
// query describing what to look for in the patent corpus.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the declared type of a target column.
type ColumnType string

const (
	// TypeNumeric marks a column holding numeric values.
	TypeNumeric ColumnType = "NUMERIC"
	// TypeText marks a column holding free text.
	TypeText ColumnType = "TEXT"
)

// Column is one typed column of the target dataset.
type Column struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// Dataset describes the accumulator table for one extraction: the
// extraction intent plus the ordered column list. Immutable once an
// extraction has been submitted.
type Dataset struct {
	Query   string   `json:"query"`
	Columns []Column `json:"columns"`
}

// New builds a Dataset from the transport-level representation: parallel
// slices of column names and types. It validates the result.
func New(query string, names []string, types []ColumnType) (*Dataset, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("schema: %d columns but %d types", len(names), len(types))
	}
	ds := &Dataset{Query: query, Columns: make([]Column, 0, len(names))}
	for i, name := range names {
		ds.Columns = append(ds.Columns, Column{Name: name, Type: types[i]})
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks that the dataset is usable as a table definition.
func (d *Dataset) Validate() error {
	if strings.TrimSpace(d.Query) == "" {
		return fmt.Errorf("schema: query must not be empty")
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("schema: at least one column is required")
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("schema: column name must not be empty")
		}
		if strings.ContainsAny(name, ",\"\n\r") {
			return fmt.Errorf("schema: column name %q contains CSV control characters", c.Name)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("schema: duplicate column name %q", c.Name)
		}
		seen[key] = true
		switch c.Type {
		case TypeNumeric, TypeText:
		default:
			return fmt.Errorf("schema: column %q has unknown type %q (want NUMERIC or TEXT)", c.Name, c.Type)
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Header returns the header-only CSV for this dataset. It is the result
// of an extraction that accumulated no rows.
func (d *Dataset) Header() string {
	return strings.Join(d.ColumnNames(), ",") + "\n"
}

// QuoteIdent quotes a column or table name as a SQL identifier so that
// reserved words and special characters stay valid.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
