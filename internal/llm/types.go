// Package llm wraps the two external model capabilities the extraction
// pipeline depends on: transcribing a raw patent table to CSV, and
// judging whether a transcribed table can be stacked onto the target
// dataset.
package llm

import (
	"context"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

// ColumnDescription documents one column of a transcribed table.
type ColumnDescription struct {
	Name        string `json:"column_name"`
	Description string `json:"description"`
}

// TranscribedTable is the structured record produced from one raw table
// fragment: a human-readable description, the column manifest, and the
// row data serialized as CSV (header plus at least one data row).
type TranscribedTable struct {
	Description string              `json:"table_description"`
	Columns     []ColumnDescription `json:"column_descriptions"`
	CSV         string              `json:"csv"`
}

// Verdict is the relevance decision for one transcribed table. Command
// is the SQL that merges the staging table into the accumulator; it is
// empty exactly when the table is not relevant.
type Verdict struct {
	Relevant bool   `json:"is_relevant"`
	Command  string `json:"sql_command"`
}

// Transcriber converts one raw table fragment into a structured record.
// A (nil, nil) return means the fragment yielded no usable table; the
// caller treats it as contributing nothing.
type Transcriber interface {
	Transcribe(ctx context.Context, tableXML string) (*TranscribedTable, error)
}

// Evaluator decides whether a transcribed table is compatible with the
// target dataset and, if so, produces the merge command.
type Evaluator interface {
	Evaluate(ctx context.Context, table *TranscribedTable, target *schema.Dataset) (Verdict, error)
}
