package llm

import (
	"strings"
	"testing"
)

func TestRepairOverflow_MergesTrailingTextRow(t *testing.T) {
	in := "col1,col2,col3\n\"A\",\"1\",\"2\"\n\"tail\",\"NA\",\"NA\"\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatalf("RepairOverflow failed: %v", err)
	}

	_, rows, err := parseTable(out)
	if err != nil {
		t.Fatalf("repaired output does not parse: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 merged row, got %d: %q", len(rows), out)
	}
	if rows[0][0] != "Atail" {
		t.Errorf("column 1 = %q, want Atail", rows[0][0])
	}
	if rows[0][1] != "1" || rows[0][2] != "2" {
		t.Errorf("other columns changed: %v", rows[0])
	}
}

func TestRepairOverflow_DropsAllNullRow(t *testing.T) {
	in := "a,b\n\"x\",\"1\"\n\"NA\",\"\"\n\"y\",\"2\"\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatal(err)
	}
	_, rows, err := parseTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %q", len(rows), out)
	}
}

func TestRepairOverflow_KeepsWideRows(t *testing.T) {
	// 3+ non-null cells are genuine data regardless of content type.
	in := "a,b,c\n\"x\",\"1\",\"2\"\n\"p\",\"q\",\"r\"\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatal(err)
	}
	_, rows, err := parseTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both rows retained, got %d", len(rows))
	}
}

func TestRepairOverflow_KeepsShortNumericRow(t *testing.T) {
	// A short row with a numeric cell is real data, not a continuation.
	in := "a,b,c\n\"x\",\"1\",\"2\"\n\"5\",\"NA\",\"NA\"\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatal(err)
	}
	_, rows, err := parseTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected short numeric row retained, got %d rows: %q", len(rows), out)
	}
	if rows[1][0] != "5" {
		t.Errorf("row 2 col 1 = %q, want 5", rows[1][0])
	}
}

func TestRepairOverflow_ShortTextRowWithoutPredecessor(t *testing.T) {
	// Nothing to fold into: the row stays.
	in := "a,b,c\n\"label\",\"NA\",\"NA\"\n\"x\",\"1\",\"2\"\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatal(err)
	}
	_, rows, err := parseTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %q", len(rows), out)
	}
	if rows[0][0] != "label" {
		t.Errorf("leading short row lost: %v", rows[0])
	}
}

func TestRepairOverflow_TwoCellContinuation(t *testing.T) {
	in := "name,unit,value\n\"poly\",\"um\",\"25\"\n\"ethylene\",\"eters\",\"NA\"\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatal(err)
	}
	_, rows, err := parseTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected merged row, got %d", len(rows))
	}
	if rows[0][0] != "polyethylene" || rows[0][1] != "umeters" {
		t.Errorf("merged row = %v", rows[0])
	}
}

func TestRepairOverflow_OutputFullyQuoted(t *testing.T) {
	in := "a,b\nx,1\n"
	out, err := RepairOverflow(in, "NA")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"x","1"`) {
		t.Errorf("expected quoted fields, got %q", out)
	}
}

func TestRepairOverflow_InvalidCSV(t *testing.T) {
	if _, err := RepairOverflow("only a header\n", "NA"); err == nil {
		t.Error("expected error for header-only csv")
	}
	if _, err := RepairOverflow("a,b\n\"x\n", "NA"); err == nil {
		t.Error("expected error for malformed csv")
	}
}
