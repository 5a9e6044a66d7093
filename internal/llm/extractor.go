package llm

import (
	"fmt"
	"strings"

	"github.com/jonathan/call-transcriber/internal/prompts"
)

// ExtractionSchema describes the JSON document the model must produce for a piece of text.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "CallAnalysis")
	System      string        // System instruction for the model
	Description string        // Task description placed before the field list
	Fields      []SchemaField // Expected output fields
	InputLabel  string        // Heading placed before the input text
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint shown to the model
	Description string // Description for the model
	Required    bool
}

// BuildExtractionPrompt constructs the model prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	label := schema.InputLabel
	if label == "" {
		label = "Input text"
	}
	sb.WriteString(label)
	sb.WriteString(":\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n\n")

	sb.WriteString("Respond in JSON format with this EXACT structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		fmt.Fprintf(&sb, "  \"%s\": %s%s", field.Name, typeHint, requiredHint)
		if field.Description != "" {
			fmt.Fprintf(&sb, " // %s", field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")
	sb.WriteString("Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")

	return sb.String()
}

const promptFile = "analysis.json"

// CallTags is the tag vocabulary offered to the model
var CallTags = []string{
	"client wants to buy", "wrong number", "needs follow-up", "voicemail",
	"complaint", "inquiry", "sale", "support", "other",
}

// CallAnalysisSchema returns the extraction schema for phone call transcripts.
func CallAnalysisSchema() ExtractionSchema {
	quoted := make([]string, len(CallTags))
	for i, tag := range CallTags {
		quoted[i] = `"` + tag + `"`
	}

	return ExtractionSchema{
		Name:   "CallAnalysis",
		System: prompts.MustRender(promptFile, "call-analysis-system", nil),
		Description: prompts.MustRender(promptFile, "call-analysis-instructions", map[string]string{
			"Tags": strings.Join(quoted, ", "),
		}),
		InputLabel: "Transcript",
		Fields: []SchemaField{
			{Name: "summary", Type: `"string"`, Description: "2-3 sentence summary", Required: true},
			{Name: "tags", Type: `["string"]`, Description: "tags from the list above", Required: true},
			{Name: "roles", Type: `{"speaker1": "agent", "speaker2": "customer"}`},
			{Name: "emotions", Type: `["string"]`},
			{Name: "intent", Type: `"string"`},
			{Name: "mood", Type: `"string"`},
			{Name: "insights", Type: `["string"]`},
		},
	}
}
