package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

// transcribePrompt builds the strict transcription instruction set for
// one raw table fragment.
func transcribePrompt(tableXML, nullToken string) string {
	var b strings.Builder
	b.WriteString("Using the OCR table (XML) provided, create column and table descriptions and return the table as CSV.\n\n")
	b.WriteString("Tasks:\n\n")
	b.WriteString("table_description:\n")
	b.WriteString("- Provide a verbose description of the table based on the XML structure.\n\n")
	b.WriteString("column_descriptions:\n")
	b.WriteString("- Make column names SQL compatible (use underscores for spaces, no dots, etc.)\n")
	b.WriteString("- Ensure each column name is unique\n")
	b.WriteString("- Add units to column names if present (e.g., time_hours, temp_celsius)\n")
	b.WriteString("- Preserve the original meaning of headers (e.g., \"UTC Untreated control group (%)\" -> \"utc_untreated_control_group_pct\")\n")
	b.WriteString("- Avoid SQL reserved keywords (e.g., group, order, id)\n")
	b.WriteString("- Do not interpret or rename based on assumed purpose\n\n")
	b.WriteString("csv:\n")
	b.WriteString("- Transcribe each <row> as a separate CSV row, regardless of the number of <entry> tags it contains\n")
	fmt.Fprintf(&b, "- Use %q for missing or empty values\n", nullToken)
	b.WriteString("- Use comma as delimiter\n")
	b.WriteString("- Use double quotes around ALL fields (both text and numeric)\n")
	b.WriteString("- Preserve all text exactly as it appears in the XML, including descriptive elements like <sub></sub>\n")
	b.WriteString("- Do not merge or interpret any data\n\n")
	b.WriteString("Inputs:\ntable XML:")
	b.WriteString(tableXML)
	return b.String()
}

// relevancePrompt builds the compatibility request for one transcribed
// table against the target dataset: column/type list and intent on one
// side, description, manifest, inferred types and a small data sample
// on the other.
func relevancePrompt(target *schema.Dataset, table *TranscribedTable, nullToken string) (string, error) {
	header, rows, err := parseTable(table.CSV)
	if err != nil {
		return "", fmt.Errorf("relevance prompt: %w", err)
	}

	sample, err := sampleRecords(header, rows, nullToken, 3)
	if err != nil {
		return "", fmt.Errorf("relevance prompt: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your goal is to produce this dataset: %s.\n", target.Query)
	b.WriteString("To do so you must evaluate whether two tables are compatible for stacking and if so stack them with a SQL command.\n\n")
	b.WriteString("Tasks:\n")
	b.WriteString("1. Check compatibility:\n")
	b.WriteString("   - Verify that secondary_table holds data for every primary_table column (possibly under different names or units)\n")
	b.WriteString("   - Validate data quality\n")
	b.WriteString("   - Return is_relevant=false if validation fails\n\n")
	b.WriteString("2. If compatible, generate SQL:\n")
	b.WriteString("   - Stack (INSERT INTO) secondary_table onto primary_table\n")
	b.WriteString("   - Apply column mapping and type casts as needed\n\n")
	b.WriteString("Output Format:\n")
	b.WriteString("- is_relevant: boolean\n")
	b.WriteString("- sql_command: complete SQL command if is_relevant=true, empty string otherwise\n\n")
	b.WriteString("Data:\nprimary_table:\nSchema:\n")
	for _, col := range target.Columns {
		fmt.Fprintf(&b, "- %s (%s)\n", col.Name, col.Type)
	}
	b.WriteString("\nsecondary_table:\n")
	fmt.Fprintf(&b, "Description: %s\n", table.Description)
	fmt.Fprintf(&b, "Schema: %s\n", describeColumns(table.Columns))
	fmt.Fprintf(&b, "Types: %s\n", describeTypes(header, rows, nullToken))
	fmt.Fprintf(&b, "First %d rows: %s\n", min(3, len(rows)), sample)
	return b.String(), nil
}

func describeColumns(cols []ColumnDescription) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s: %s", c.Name, c.Description)
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

// describeTypes reports an inferred type per column so the model can
// reason about casts. Integer-first, then floating point, then text.
func describeTypes(header []string, rows [][]string, nullToken string) string {
	parts := make([]string, len(header))
	for i, name := range header {
		kind := "BIGINT"
		seen := false
		for _, row := range rows {
			if i >= len(row) || isNull(row[i], nullToken) {
				continue
			}
			seen = true
			cell := strings.TrimSpace(row[i])
			if kind == "BIGINT" && !isInteger(cell) {
				kind = "DOUBLE"
			}
			if kind == "DOUBLE" && !isNumeric(cell) {
				kind = "VARCHAR"
				break
			}
		}
		if !seen {
			kind = "VARCHAR"
		}
		parts[i] = fmt.Sprintf("%s: %s", name, kind)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func isInteger(cell string) bool {
	if cell == "" {
		return false
	}
	for i, r := range cell {
		if r == '-' && i == 0 && len(cell) > 1 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sampleRecords renders the first n data rows as JSON records.
func sampleRecords(header []string, rows [][]string, nullToken string, n int) (string, error) {
	if len(rows) > n {
		rows = rows[:n]
	}
	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(header))
		for i, name := range header {
			if i >= len(row) || isNull(row[i], nullToken) {
				rec[name] = nil
			} else {
				rec[name] = row[i]
			}
		}
		records = append(records, rec)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
