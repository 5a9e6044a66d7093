// Package analysis turns call transcripts into structured call analyses using an LLM.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/llm"
	"github.com/jonathan/call-transcriber/internal/schemas"
	"github.com/jonathan/call-transcriber/internal/types"
)

// NoTranscriptTag is assigned when there is nothing to analyze
const NoTranscriptTag = "no-transcript"

// Analyzer produces a structured analysis for a transcript
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*types.CallAnalysis, error)
}

// UpstreamError reports a failed or malformed response from the analysis model
type UpstreamError struct {
	Model string
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("analysis model %s failed: %v", e.Model, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// IsUpstreamError reports whether err is an UpstreamError
func IsUpstreamError(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr)
}

// LLMAnalyzer implements Analyzer on top of an llm.Client
type LLMAnalyzer struct {
	client llm.Client
	tier   llm.ModelTier // empty picks the tier from the transcript length
	logger *logrus.Logger
}

// NewLLMAnalyzer creates an analyzer that sizes the model to each transcript
func NewLLMAnalyzer(client llm.Client, logger *logrus.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LLMAnalyzer{client: client, logger: logger}
}

// WithTier returns a copy of the analyzer pinned to one model tier
func (a *LLMAnalyzer) WithTier(tier llm.ModelTier) *LLMAnalyzer {
	copied := *a
	copied.tier = tier
	return &copied
}

func (a *LLMAnalyzer) tierFor(transcript string) llm.ModelTier {
	if a.tier != "" {
		return a.tier
	}
	return llm.TierFor(len(transcript))
}

// Analyze sends the transcript to the model and parses its JSON answer.
// A blank transcript is answered locally without calling the model.
func (a *LLMAnalyzer) Analyze(ctx context.Context, transcript string) (*types.CallAnalysis, error) {
	if strings.TrimSpace(transcript) == "" {
		return &types.CallAnalysis{
			Summary:  "No transcript available.",
			Tags:     []string{NoTranscriptTag},
			Roles:    map[string]string{},
			Emotions: []string{},
			Intent:   types.DefaultIntent,
			Mood:     types.DefaultMood,
			Insights: []string{},
		}, nil
	}

	schema := llm.CallAnalysisSchema()
	tier := a.tierFor(transcript)
	model := a.client.Model(tier)

	a.logger.WithFields(logrus.Fields{
		"model": model,
		"tier":  tier,
		"chars": len(transcript),
	}).Debug("Analyzing transcript")

	resp, err := a.client.GenerateJSON(ctx, llm.Request{
		System: schema.System,
		Prompt: llm.BuildExtractionPrompt(schema, transcript),
		Tier:   tier,
	})
	if err != nil {
		return nil, &UpstreamError{Model: model, Cause: err}
	}

	result, err := ParseAnalysis(resp.Text)
	if err != nil {
		return nil, &UpstreamError{Model: resp.Model, Cause: err}
	}

	a.logger.WithFields(logrus.Fields{
		"model":           resp.Model,
		"tags":            len(result.Tags),
		"intent":          result.Intent,
		"prompt_tokens":   resp.Usage.PromptTokens,
		"response_tokens": resp.Usage.ResponseTokens,
	}).Info("Analysis completed")

	return result, nil
}

// ParseAnalysis validates a model response against the call analysis schema
// and decodes it with defaults applied to missing fields.
func ParseAnalysis(raw string) (*types.CallAnalysis, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty analysis response")
	}
	if err := schemas.ValidateCallAnalysis(cleaned); err != nil {
		return nil, fmt.Errorf("invalid analysis response: %w", err)
	}

	var result types.CallAnalysis
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	result.Normalize()
	return &result, nil
}
