package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/analysis"
	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/metrics"
	"github.com/jonathan/call-transcriber/internal/progress"
	"github.com/jonathan/call-transcriber/internal/stt"
	"github.com/jonathan/call-transcriber/internal/types"
)

// CallStore persists call records
type CallStore interface {
	CreateCall(ctx context.Context, filename, audioFilePath string) (uuid.UUID, error)
	UpdateCallResults(ctx context.Context, id uuid.UUID, transcript string, a *types.CallAnalysis) error
	DeleteCall(ctx context.Context, id uuid.UUID) error
	GetCall(ctx context.Context, id uuid.UUID) (*db.Call, error)
}

// ArtifactStore persists uploaded audio
type ArtifactStore interface {
	Save(name string, data []byte) (string, error)
	Remove(path string) error
}

// Deps are the collaborators a Coordinator drives
type Deps struct {
	Calls       CallStore
	Artifacts   ArtifactStore
	Transcriber stt.Transcriber
	Analyzer    analysis.Analyzer
	Publisher   progress.Publisher

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Clock   Clock
}

func (d *Deps) validate() error {
	switch {
	case d.Calls == nil:
		return fmt.Errorf("call store is required")
	case d.Artifacts == nil:
		return fmt.Errorf("artifact store is required")
	case d.Transcriber == nil:
		return fmt.Errorf("transcriber is required")
	case d.Analyzer == nil:
		return fmt.Errorf("analyzer is required")
	case d.Publisher == nil:
		return fmt.Errorf("progress publisher is required")
	}
	return nil
}

// Upload limits and stage budgets
const (
	DefaultMaxUploadBytes        int64 = 100 * 1024 * 1024
	DefaultTranscriptionTimeout        = 300 * time.Second
	DefaultExpectedTranscription       = 60 * time.Second
	DefaultAnalysisTimeout             = 60 * time.Second
	DefaultExpectedAnalysis            = 15 * time.Second
	DefaultMaxAnalysisChars            = 1000
	DefaultCleanupTimeout              = 10 * time.Second
)

// TruncationMarker is appended to a transcript cut down for analysis
const TruncationMarker = "... [truncated]"

// DefaultAllowedExtensions lists the accepted audio formats
var DefaultAllowedExtensions = []string{".wav", ".mp3", ".m4a", ".ogg", ".flac", ".webm"}

// Options tunes the pipeline
type Options struct {
	MaxUploadBytes    int64
	AllowedExtensions []string

	TranscriptionTimeout  time.Duration
	ExpectedTranscription time.Duration
	AnalysisTimeout       time.Duration
	ExpectedAnalysis      time.Duration
	PollInterval          time.Duration

	MaxAnalysisChars int
	CleanupTimeout   time.Duration

	// RetainOnFailure keeps the record and artifact of a run that failed
	// after the record was created
	RetainOnFailure bool
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes:        DefaultMaxUploadBytes,
		AllowedExtensions:     DefaultAllowedExtensions,
		TranscriptionTimeout:  DefaultTranscriptionTimeout,
		ExpectedTranscription: DefaultExpectedTranscription,
		AnalysisTimeout:       DefaultAnalysisTimeout,
		ExpectedAnalysis:      DefaultExpectedAnalysis,
		PollInterval:          DefaultPollInterval,
		MaxAnalysisChars:      DefaultMaxAnalysisChars,
		CleanupTimeout:        DefaultCleanupTimeout,
	}
}

// withDefaults fills zero fields from DefaultOptions
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = d.MaxUploadBytes
	}
	if len(o.AllowedExtensions) == 0 {
		o.AllowedExtensions = d.AllowedExtensions
	}
	if o.TranscriptionTimeout <= 0 {
		o.TranscriptionTimeout = d.TranscriptionTimeout
	}
	if o.ExpectedTranscription <= 0 {
		o.ExpectedTranscription = d.ExpectedTranscription
	}
	if o.AnalysisTimeout <= 0 {
		o.AnalysisTimeout = d.AnalysisTimeout
	}
	if o.ExpectedAnalysis <= 0 {
		o.ExpectedAnalysis = d.ExpectedAnalysis
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.MaxAnalysisChars <= 0 {
		o.MaxAnalysisChars = d.MaxAnalysisChars
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = d.CleanupTimeout
	}
	return o
}

func (o Options) transcriptionSpec() StageSpec {
	return StageSpec{
		Stage:        progress.StageTranscribing,
		Label:        "Transcription",
		StartPercent: 35,
		EndPercent:   70,
		Budget:       o.TranscriptionTimeout,
		Expected:     o.ExpectedTranscription,
	}
}

func (o Options) analysisSpec() StageSpec {
	return StageSpec{
		Stage:        progress.StageAnalyzing,
		Label:        "LLM analysis",
		StartPercent: 70,
		EndPercent:   90,
		Budget:       o.AnalysisTimeout,
		Expected:     o.ExpectedAnalysis,
	}
}
