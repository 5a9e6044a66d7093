// Package stt provides speech-to-text backends for uploaded call recordings.
package stt

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Provider names accepted by New
const (
	ProviderGoogle  = "google"
	ProviderWhisper = "whisper"
)

// ErrAudioNotFound is returned when the audio artifact does not exist
var ErrAudioNotFound = errors.New("audio file not found")

// Transcriber converts a stored audio file into text.
// An empty language lets the engine detect it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// EngineError reports a failure inside a speech engine
type EngineError struct {
	Provider string
	Cause    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Provider, e.Cause)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Config selects and configures a transcription backend
type Config struct {
	Provider string

	// Whisper over the OpenAI audio API
	OpenAIAPIKey  string
	WhisperModel  string
	WhisperAPIURL string

	// Google Speech-to-Text
	GoogleLanguage        string
	GoogleAPIKey          string
	GoogleCredentialsFile string
}

// New creates the transcriber selected by cfg.Provider
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (Transcriber, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	switch cfg.Provider {
	case ProviderWhisper, "":
		return NewWhisperTranscriber(cfg, logger)
	case ProviderGoogle:
		return NewGoogleTranscriber(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// checkAudio verifies that the artifact exists and is a regular file
func checkAudio(audioPath string) (os.FileInfo, error) {
	info, err := os.Stat(audioPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAudioNotFound, audioPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrAudioNotFound, audioPath)
	}
	return info, nil
}
