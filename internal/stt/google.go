package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// DefaultGoogleLanguage is used when neither the request nor the config names a language
const DefaultGoogleLanguage = "en-US"

type recognizeFunc func(ctx context.Context, cfg *speechpb.RecognitionConfig, audio *speechpb.RecognitionAudio) ([]*speechpb.SpeechRecognitionResult, error)

// GoogleTranscriber uses Google Speech-to-Text long-running recognition
type GoogleTranscriber struct {
	logger    *logrus.Logger
	client    *speech.Client
	language  string
	recognize recognizeFunc
}

// NewGoogleTranscriber creates the Speech client from an API key or credentials file.
// With neither set, application default credentials are used.
func NewGoogleTranscriber(ctx context.Context, cfg Config, logger *logrus.Logger) (*GoogleTranscriber, error) {
	var clientOptions []option.ClientOption
	if cfg.GoogleAPIKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(cfg.GoogleAPIKey))
	} else if cfg.GoogleCredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}

	client, err := speech.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	t := &GoogleTranscriber{
		logger:   logger,
		client:   client,
		language: cfg.GoogleLanguage,
	}
	t.recognize = func(ctx context.Context, rc *speechpb.RecognitionConfig, audio *speechpb.RecognitionAudio) ([]*speechpb.SpeechRecognitionResult, error) {
		op, err := client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{Config: rc, Audio: audio})
		if err != nil {
			return nil, err
		}
		resp, err := op.Wait(ctx)
		if err != nil {
			return nil, err
		}
		return resp.GetResults(), nil
	}
	if t.language == "" {
		t.language = DefaultGoogleLanguage
	}

	logger.WithField("language", t.language).Info("Google Speech-to-Text client initialized")
	return t, nil
}

// Name returns the provider identifier
func (t *GoogleTranscriber) Name() string {
	return ProviderGoogle
}

// Close releases the Speech client
func (t *GoogleTranscriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

// Transcribe recognizes the whole file and joins the best alternative of each result
func (t *GoogleTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if _, err := checkAudio(audioPath); err != nil {
		return "", err
	}

	content, err := os.ReadFile(audioPath)
	if err != nil {
		return "", &EngineError{Provider: ProviderGoogle, Cause: fmt.Errorf("failed to read audio file: %w", err)}
	}

	if language == "" {
		language = t.language
	}
	rc := &speechpb.RecognitionConfig{
		Encoding:                   encodingFor(audioPath),
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}

	start := time.Now()
	t.logger.WithFields(logrus.Fields{
		"file":     filepath.Base(audioPath),
		"language": language,
		"encoding": rc.Encoding.String(),
	}).Info("Transcribing audio")

	results, err := t.recognize(ctx, rc, &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
	})
	if err != nil {
		return "", &EngineError{Provider: ProviderGoogle, Cause: err}
	}

	transcript := joinResults(results)
	t.logger.WithFields(logrus.Fields{
		"chars":    len(transcript),
		"duration": time.Since(start).String(),
	}).Info("Transcription completed")

	return transcript, nil
}

func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	var parts []string
	for _, result := range results {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// encodingFor maps a file extension to a Speech encoding. Containers whose
// header carries the sample rate leave the rest of the config to the service.
func encodingFor(audioPath string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg":
		return speechpb.RecognitionConfig_OGG_OPUS
	case ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
