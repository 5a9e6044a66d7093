package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildExtractionPrompt_CallAnalysis(t *testing.T) {
	schema := CallAnalysisSchema()
	prompt := BuildExtractionPrompt(schema, "Agent: Hello, how can I help?")

	assert.Contains(t, prompt, "Transcript:\n\"\"\"\nAgent: Hello, how can I help?\n\"\"\"")
	assert.Contains(t, prompt, `"summary": "string" (required)`)
	assert.Contains(t, prompt, `"roles": {"speaker1": "agent", "speaker2": "customer"}`)
	assert.Contains(t, prompt, `"needs follow-up"`)
	assert.True(t, strings.HasSuffix(prompt, "no code blocks.\n"))

	// Transcript comes before the output structure
	assert.Less(t, strings.Index(prompt, "Transcript:"), strings.Index(prompt, "EXACT structure"))
}

func TestBuildExtractionPrompt_Defaults(t *testing.T) {
	schema := ExtractionSchema{
		Description: "Extract things.",
		Fields: []SchemaField{
			{Name: "a"},
			{Name: "b", Type: `["string"]`, Description: "list of b"},
		},
	}
	prompt := BuildExtractionPrompt(schema, "text")

	assert.Contains(t, prompt, "Input text:")
	assert.Contains(t, prompt, `"a": "string",`)
	assert.Contains(t, prompt, `"b": ["string"] // list of b`+"\n}")
}

func TestCallAnalysisSchema_Fields(t *testing.T) {
	schema := CallAnalysisSchema()

	names := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"summary", "tags", "roles", "emotions", "intent", "mood", "insights"}, names)
	assert.NotEmpty(t, schema.System)
}

func TestCallAnalysisSchema_ListsTagVocabulary(t *testing.T) {
	schema := CallAnalysisSchema()

	assert.NotContains(t, schema.Description, "{{.Tags}}")
	for _, tag := range CallTags {
		assert.Contains(t, schema.Description, `"`+tag+`"`)
	}
}
