package db

import (
	"time"

	"github.com/google/uuid"
)

// Call represents a call record
type Call struct {
	ID              uuid.UUID         `json:"id"`
	Filename        string            `json:"filename"`
	AudioFilePath   string            `json:"audio_file_path"`
	Transcript      string            `json:"transcript"`
	Summary         string            `json:"summary"`
	Tags            []string          `json:"tags"`
	TagsOriginal    []string          `json:"tags_original"`
	TagsOverride    []string          `json:"tags_override"`
	Roles           map[string]string `json:"roles"`
	Emotions        []string          `json:"emotions"`
	Intent          string            `json:"intent"`
	Mood            string            `json:"mood"`
	Insights        []string          `json:"insights"`
	UploadTimestamp time.Time         `json:"upload_timestamp"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HasTranscript reports whether the call carries a non-blank transcript
func (c *Call) HasTranscript() bool {
	for _, r := range c.Transcript {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

// CallFilters holds optional filters for listing calls
type CallFilters struct {
	Tag       string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Skip      int
}

// Listing bounds
const (
	DefaultCallLimit = 100
	MaxCallLimit     = 1000
)

// TagCount is one entry of the tag distribution
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// CallAnalytics summarizes all stored calls
type CallAnalytics struct {
	TotalCalls             int        `json:"total_calls"`
	TotalTags              int        `json:"total_tags"`
	AverageTagsPerCall     float64    `json:"average_tags_per_call"`
	CallsWithTranscript    int        `json:"calls_with_transcript"`
	CallsWithoutTranscript int        `json:"calls_without_transcript"`
	TagDistribution        []TagCount `json:"tag_distribution"`
}
