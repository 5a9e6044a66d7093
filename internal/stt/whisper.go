package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Whisper API defaults
const (
	DefaultWhisperAPIURL = "https://api.openai.com/v1/audio/transcriptions"
	DefaultWhisperModel  = "whisper-1"
)

// WhisperTranscriber sends audio files to an OpenAI-compatible transcription endpoint
type WhisperTranscriber struct {
	logger     *logrus.Logger
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// NewWhisperTranscriber validates the configuration and builds the transcriber
func NewWhisperTranscriber(cfg Config, logger *logrus.Logger) (*WhisperTranscriber, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the whisper provider")
	}

	t := &WhisperTranscriber{
		logger: logger,
		apiKey: cfg.OpenAIAPIKey,
		model:  cfg.WhisperModel,
		apiURL: cfg.WhisperAPIURL,
		// No client timeout: the pipeline enforces its own budget
		httpClient: &http.Client{},
	}
	if t.model == "" {
		t.model = DefaultWhisperModel
	}
	if t.apiURL == "" {
		t.apiURL = DefaultWhisperAPIURL
	}
	return t, nil
}

// Name returns the provider identifier
func (t *WhisperTranscriber) Name() string {
	return ProviderWhisper
}

type whisperResponse struct {
	Text string `json:"text"`
}

type whisperErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads the file and returns the recognized text
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if _, err := checkAudio(audioPath); err != nil {
		return "", err
	}

	body, contentType, err := t.buildRequestBody(audioPath, language)
	if err != nil {
		return "", &EngineError{Provider: ProviderWhisper, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, body)
	if err != nil {
		return "", &EngineError{Provider: ProviderWhisper, Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	t.logger.WithFields(logrus.Fields{
		"file":     filepath.Base(audioPath),
		"model":    t.model,
		"language": language,
	}).Info("Transcribing audio")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &EngineError{Provider: ProviderWhisper, Cause: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &EngineError{Provider: ProviderWhisper, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr whisperErrorResponse
		msg := strings.TrimSpace(string(payload))
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &EngineError{
			Provider: ProviderWhisper,
			Cause:    fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}

	var result whisperResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", &EngineError{Provider: ProviderWhisper, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}

	transcript := strings.TrimSpace(result.Text)
	t.logger.WithFields(logrus.Fields{
		"chars":    len(transcript),
		"duration": time.Since(start).String(),
	}).Info("Transcription completed")

	return transcript, nil
}

func (t *WhisperTranscriber) buildRequestBody(audioPath, language string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	fields := map[string]string{
		"model":           t.model,
		"response_format": "json",
	}
	if language != "" {
		fields["language"] = language
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
