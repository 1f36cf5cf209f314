package llm

import (
	"strings"
	"testing"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "already clean",
			raw:  `{"is_relevant": true}`,
			want: `{"is_relevant": true}`,
		},
		{
			name: "json fence",
			raw:  "```json\n{\"is_relevant\": true}\n```",
			want: `{"is_relevant": true}`,
		},
		{
			name: "bare fence",
			raw:  "```\n{\"csv\": \"a,b\"}\n```",
			want: `{"csv": "a,b"}`,
		},
		{
			name: "leading prose",
			raw:  "Here is the result:\n{\"is_relevant\": false}\nHope this helps.",
			want: `{"is_relevant": false}`,
		},
		{
			name: "surrounding whitespace",
			raw:  "  \n{\"a\": 1}\n  ",
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		wantErr bool
	}{
		{"valid", []string{"aso_sequence", "inhibition_pct"}, false},
		{"duplicate case-insensitive", []string{"a", "A"}, true},
		{"space in name", []string{"a b"}, true},
		{"leading digit", []string{"1a"}, true},
		{"empty name", []string{""}, true},
		{"underscore prefix ok", []string{"_x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHeader(tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHeader(%v) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
		})
	}
}

func TestTranscribePrompt(t *testing.T) {
	prompt := transcribePrompt("<table><row><entry>x</entry></row></table>", "NA")
	for _, want := range []string{
		"table_description",
		"column_descriptions",
		`"NA" for missing or empty values`,
		"<table><row><entry>x</entry></row></table>",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("transcription prompt missing %q", want)
		}
	}
}

func TestRelevancePrompt(t *testing.T) {
	target := &schema.Dataset{
		Query: "antisense-oligonucleotide sequences and inhibition percentages",
		Columns: []schema.Column{
			{Name: "aso_sequence", Type: schema.TypeText},
			{Name: "inhibition_percent", Type: schema.TypeNumeric},
		},
	}
	table := &TranscribedTable{
		Description: "ASO screening results",
		Columns: []ColumnDescription{
			{Name: "sequence", Description: "5'-3' sequence"},
			{Name: "knockdown_pct", Description: "knockdown percentage"},
		},
		CSV: "sequence,knockdown_pct\n\"ACGT\",\"75\"\n\"TTGG\",\"80.5\"\n\"CCAA\",\"NA\"\n\"GGTT\",\"12\"\n",
	}

	prompt, err := relevancePrompt(target, table, "NA")
	if err != nil {
		t.Fatalf("relevancePrompt failed: %v", err)
	}
	for _, want := range []string{
		"aso_sequence (TEXT)",
		"inhibition_percent (NUMERIC)",
		"ASO screening results",
		"sequence: 5'-3' sequence",
		// Mixed ints and floats infer DOUBLE.
		"knockdown_pct: DOUBLE",
		"sequence: VARCHAR",
		`"sequence":"ACGT"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("relevance prompt missing %q\nprompt:\n%s", want, prompt)
		}
	}
	// Only the first 3 rows go into the sample.
	if strings.Contains(prompt, "GGTT") {
		t.Error("sample should be capped at 3 rows")
	}
}

func TestDescribeTypes(t *testing.T) {
	header := []string{"i", "f", "s", "empty"}
	rows := [][]string{
		{"1", "1.5", "abc", "NA"},
		{"-2", "2", "NA", ""},
	}
	got := describeTypes(header, rows, "NA")
	for _, want := range []string{"i: BIGINT", "f: DOUBLE", "s: VARCHAR", "empty: VARCHAR"} {
		if !strings.Contains(got, want) {
			t.Errorf("describeTypes() = %s, missing %q", got, want)
		}
	}
}
