package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

// Config selects the Gemini models behind each capability.
type Config struct {
	TranscribeModel string
	RelevanceModel  string
	NullToken       string
}

// Gemini implements Transcriber and Evaluator against the Gemini API.
// Credentials come from the environment (GEMINI_API_KEY).
type Gemini struct {
	client *genai.Client
	cfg    Config
}

// NewGemini creates the shared Gemini client.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

var transcribedTableSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"table_description": {Type: genai.TypeString},
		"column_descriptions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"column_name": {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
				},
				Required: []string{"column_name", "description"},
			},
		},
		"csv": {Type: genai.TypeString},
	},
	Required: []string{"table_description", "column_descriptions", "csv"},
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_relevant": {Type: genai.TypeBoolean},
		"sql_command": {Type: genai.TypeString},
	},
	Required: []string{"is_relevant", "sql_command"},
}

// Transcribe implements Transcriber. The model output must parse as a
// non-empty rectangular CSV with SQL-safe unique column names; anything
// else is treated as "no table" and reported as (nil, nil). Valid
// output is run through overflow repair before it is returned.
func (g *Gemini) Transcribe(ctx context.Context, tableXML string) (*TranscribedTable, error) {
	raw, err := g.generateJSON(ctx, g.cfg.TranscribeModel, transcribePrompt(tableXML, g.cfg.NullToken), transcribedTableSchema)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	var table TranscribedTable
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("transcribe: unmarshal model output: %w\nraw response: %s", err, raw)
	}

	header, _, err := parseTable(table.CSV)
	if err != nil {
		return nil, nil
	}
	if err := validateHeader(header); err != nil {
		return nil, nil
	}

	repaired, err := RepairOverflow(table.CSV, g.cfg.NullToken)
	if err != nil {
		return nil, nil
	}
	// Repair may have dropped every row.
	if _, _, err := parseTable(repaired); err != nil {
		return nil, nil
	}
	table.CSV = repaired
	return &table, nil
}

// Evaluate implements Evaluator. The verdict is returned verbatim; the
// merge command is only validated when it executes against the store.
func (g *Gemini) Evaluate(ctx context.Context, table *TranscribedTable, target *schema.Dataset) (Verdict, error) {
	prompt, err := relevancePrompt(target, table, g.cfg.NullToken)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate: %w", err)
	}

	raw, err := g.generateJSON(ctx, g.cfg.RelevanceModel, prompt, verdictSchema)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("evaluate: unmarshal model output: %w\nraw response: %s", err, raw)
	}
	if !verdict.Relevant {
		verdict.Command = ""
	}
	return verdict, nil
}

func (g *Gemini) generateJSON(ctx context.Context, model, prompt string, responseSchema *genai.Schema) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return cleanModelJSON(raw), nil
}

// cleanModelJSON strips Markdown fences and surrounding junk in case
// the model ignored the JSON response instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// If there is still junk around the JSON object, keep only from the
	// first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
