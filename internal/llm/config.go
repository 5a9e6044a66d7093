// Package llm wraps the language model used for call analysis.
package llm

import "strings"

// ModelTier selects a model by capability
type ModelTier string

const (
	TierLite     ModelTier = "lite"
	TierStandard ModelTier = "standard"
	TierAdvanced ModelTier = "advanced"
)

// Provider names an LLM backend
type Provider string

const ProviderGemini Provider = "gemini"

const (
	// DefaultTemperature keeps analysis output stable across runs
	DefaultTemperature float32 = 0.3
	// DefaultMaxOutputTokens bounds the size of an analysis response
	DefaultMaxOutputTokens int32 = 1000
)

// Transcript sizes, in characters, at which TierFor moves up a tier
const (
	liteTranscriptChars     = 1500
	advancedTranscriptChars = 20000
)

// Config holds the model settings for analysis
type Config struct {
	Provider        Provider
	Models          map[ModelTier]string
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultConfig returns the Gemini defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// ParseTier converts a configured tier name. Unknown names yield false.
func ParseTier(s string) (ModelTier, bool) {
	switch tier := ModelTier(strings.ToLower(strings.TrimSpace(s))); tier {
	case TierLite, TierStandard, TierAdvanced:
		return tier, true
	}
	return "", false
}

// TierFor picks a tier from the transcript length: short calls go to the
// lite model and very long ones to the advanced model.
func TierFor(transcriptChars int) ModelTier {
	switch {
	case transcriptChars < liteTranscriptChars:
		return TierLite
	case transcriptChars >= advancedTranscriptChars:
		return TierAdvanced
	default:
		return TierStandard
	}
}

// GetModel returns the model for a tier, falling back to standard then lite
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if model := c.Models[t]; model != "" {
			return model
		}
	}
	return ""
}

// WithModel returns a copy of the config with one tier remapped
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	copied := *c
	copied.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		copied.Models[k] = v
	}
	copied.Models[tier] = model
	return &copied
}
