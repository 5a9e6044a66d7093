package analysis

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/call-transcriber/internal/llm"
	"github.com/jonathan/call-transcriber/internal/types"
)

type fakeClient struct {
	response string
	err      error

	got   llm.Request
	calls int
}

func (f *fakeClient) GenerateJSON(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.response, Model: "fake-model"}, nil
}

func (f *fakeClient) Model(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error               { return nil }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLLMAnalyzer_Analyze(t *testing.T) {
	client := &fakeClient{response: "```json\n" + `{
		"summary": "Customer wants a quote.",
		"tags": ["client wants to buy", "needs follow-up"],
		"roles": {"speaker1": "agent", "speaker2": "customer"},
		"emotions": ["interested"],
		"intent": "purchase",
		"mood": "positive",
		"insights": ["asked for pricing"]
	}` + "\n```"}
	analyzer := NewLLMAnalyzer(client, quietLogger())

	result, err := analyzer.Analyze(context.Background(), "Hi, I'd like a quote.")
	require.NoError(t, err)

	assert.Equal(t, "Customer wants a quote.", result.Summary)
	assert.Equal(t, []string{"client wants to buy", "needs follow-up"}, result.Tags)
	assert.Equal(t, "customer", result.Roles["speaker2"])
	assert.Equal(t, "purchase", result.Intent)
	assert.Equal(t, llm.TierLite, client.got.Tier)
	assert.Contains(t, client.got.Prompt, "Hi, I'd like a quote.")
	assert.NotEmpty(t, client.got.System)
}

func TestLLMAnalyzer_MissingFieldsGetDefaults(t *testing.T) {
	client := &fakeClient{response: `{"tags": ["inquiry"]}`}
	result, err := NewLLMAnalyzer(client, quietLogger()).Analyze(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, types.DefaultSummary, result.Summary)
	assert.Equal(t, types.DefaultIntent, result.Intent)
	assert.Equal(t, types.DefaultMood, result.Mood)
	assert.NotNil(t, result.Roles)
	assert.NotNil(t, result.Insights)
}

func TestLLMAnalyzer_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "client failure", err: errors.New("quota exceeded")},
		{name: "not JSON", response: "I cannot help with that."},
		{name: "array instead of object", response: `["sale"]`},
		{name: "tags not a list", response: `{"summary": "s", "tags": "sale"}`},
		{name: "roles not an object", response: `{"roles": "agent"}`},
		{name: "empty response", response: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{response: tt.response, err: tt.err}
			result, err := NewLLMAnalyzer(client, quietLogger()).Analyze(context.Background(), "hello")

			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, IsUpstreamError(err))

			var upstreamErr *UpstreamError
			require.True(t, errors.As(err, &upstreamErr))
			assert.Equal(t, "fake-model", upstreamErr.Model)
		})
	}
}

func TestLLMAnalyzer_BlankTranscriptSkipsModel(t *testing.T) {
	client := &fakeClient{}
	result, err := NewLLMAnalyzer(client, quietLogger()).Analyze(context.Background(), "  \n ")
	require.NoError(t, err)

	assert.Equal(t, 0, client.calls)
	assert.Equal(t, []string{NoTranscriptTag}, result.Tags)
}

func TestLLMAnalyzer_WithTier(t *testing.T) {
	client := &fakeClient{response: `{"summary": "ok"}`}
	base := NewLLMAnalyzer(client, quietLogger())
	advanced := base.WithTier(llm.TierAdvanced)

	_, err := advanced.Analyze(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, llm.TierAdvanced, client.got.Tier)
	assert.Empty(t, base.tier)
}

func TestLLMAnalyzer_TierFollowsTranscriptLength(t *testing.T) {
	client := &fakeClient{response: `{"summary": "ok"}`}
	analyzer := NewLLMAnalyzer(client, quietLogger())

	_, err := analyzer.Analyze(context.Background(), strings.Repeat("word ", 1000))
	require.NoError(t, err)
	assert.Equal(t, llm.TierStandard, client.got.Tier)
}
