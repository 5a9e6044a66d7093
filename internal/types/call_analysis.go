// Package types provides type definitions for structured data used throughout the call-transcriber system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "strings"

// Analysis defaults applied when the model omits a field
const (
	DefaultSummary = "Unable to generate summary."
	DefaultIntent  = "unknown"
	DefaultMood    = "neutral"
)

// AnalysisErrorTag marks a call whose transcript could not be analyzed
const AnalysisErrorTag = "analysis-error"

// FallbackSummary is stored when analysis fails but the transcript is kept
const FallbackSummary = "Analysis failed - transcript available but summary could not be generated."

// EmptyTranscriptMarker replaces a transcript that contains no speech
const EmptyTranscriptMarker = "[Empty transcript - audio may be silent or unclear]"

// CallAnalysis is the structured result of analyzing a call transcript
type CallAnalysis struct {
	Summary  string            `json:"summary"`
	Tags     []string          `json:"tags"`
	Roles    map[string]string `json:"roles"`
	Emotions []string          `json:"emotions"`
	Intent   string            `json:"intent"`
	Mood     string            `json:"mood"`
	Insights []string          `json:"insights"`
}

// FallbackAnalysis returns the deterministic result used when analysis fails.
func FallbackAnalysis() *CallAnalysis {
	return &CallAnalysis{
		Summary:  FallbackSummary,
		Tags:     []string{AnalysisErrorTag},
		Roles:    map[string]string{},
		Emotions: []string{},
		Intent:   DefaultIntent,
		Mood:     DefaultMood,
		Insights: []string{},
	}
}

// Normalize fills missing fields with their defaults so the result can be persisted as-is.
func (a *CallAnalysis) Normalize() {
	if strings.TrimSpace(a.Summary) == "" {
		a.Summary = DefaultSummary
	}
	if strings.TrimSpace(a.Intent) == "" {
		a.Intent = DefaultIntent
	}
	if strings.TrimSpace(a.Mood) == "" {
		a.Mood = DefaultMood
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Roles == nil {
		a.Roles = map[string]string{}
	}
	if a.Emotions == nil {
		a.Emotions = []string{}
	}
	if a.Insights == nil {
		a.Insights = []string{}
	}
}

// IsFallback reports whether the analysis is the failure fallback
func (a *CallAnalysis) IsFallback() bool {
	return len(a.Tags) == 1 && a.Tags[0] == AnalysisErrorTag
}
