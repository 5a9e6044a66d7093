// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config represents the service configuration that can be loaded from a JSON file.
// All fields are optional; missing values come from the environment or defaults.
type Config struct {
	// Storage
	DatabaseURL  string `json:"database_url,omitempty"`  // PostgreSQL connection URL
	UploadFolder string `json:"upload_folder,omitempty"` // Directory for uploaded audio

	// Analysis
	APIKey       string `json:"api_key,omitempty"`       // Gemini API key
	AnalysisTier string `json:"analysis_tier,omitempty"` // "auto", "lite", "standard" or "advanced"

	// Transcription
	STTProvider           string `json:"stt_provider,omitempty"`            // "whisper" or "google"
	OpenAIAPIKey          string `json:"openai_api_key,omitempty"`          // Whisper API key
	WhisperModel          string `json:"whisper_model,omitempty"`           // Whisper model name
	GoogleLanguage        string `json:"google_language,omitempty"`         // Google Speech language code
	GoogleCredentialsFile string `json:"google_credentials_file,omitempty"` // Service account JSON

	// Progress fan-out
	AMQPURL      string `json:"amqp_url,omitempty"`      // Broker URL, AMQP fan-out is off when empty
	AMQPExchange string `json:"amqp_exchange,omitempty"` // Topic exchange name

	// Limits
	TranscriptionTimeoutSeconds int `json:"transcription_timeout,omitempty"` // Transcription budget
	AnalysisTimeoutSeconds      int `json:"analysis_timeout,omitempty"`      // Analysis budget
	MaxUploadMB                 int `json:"max_upload_mb,omitempty"`         // Largest accepted upload

	// Behavior
	Port            int    `json:"port,omitempty"`              // HTTP listen port
	LogLevel        string `json:"log_level,omitempty"`         // logrus level name
	RetainOnFailure bool   `json:"retain_on_failure,omitempty"` // Keep record and audio of failed runs
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		UploadFolder:                "uploads",
		AnalysisTier:                "auto",
		STTProvider:                 "whisper",
		WhisperModel:                "whisper-1",
		GoogleLanguage:              "en-US",
		AMQPExchange:                "call_progress",
		TranscriptionTimeoutSeconds: 300,
		AnalysisTimeoutSeconds:      60,
		MaxUploadMB:                 100,
		Port:                        8080,
		LogLevel:                    "info",
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables. Unset variables stay empty.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		UploadFolder:          os.Getenv("UPLOAD_FOLDER"),
		APIKey:                os.Getenv("GEMINI_API_KEY"),
		AnalysisTier:          os.Getenv("ANALYSIS_TIER"),
		STTProvider:           os.Getenv("STT_PROVIDER"),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		WhisperModel:          os.Getenv("WHISPER_MODEL"),
		GoogleLanguage:        os.Getenv("GOOGLE_SPEECH_LANGUAGE"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		AMQPURL:               os.Getenv("AMQP_URL"),
		AMQPExchange:          os.Getenv("AMQP_EXCHANGE"),
		LogLevel:              os.Getenv("LOG_LEVEL"),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"TRANSCRIPTION_TIMEOUT", &cfg.TranscriptionTimeoutSeconds},
		{"ANALYSIS_TIMEOUT", &cfg.AnalysisTimeoutSeconds},
		{"MAX_UPLOAD_MB", &cfg.MaxUploadMB},
		{"PORT", &cfg.Port},
	}
	for _, v := range ints {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %v", v.name, err)
		}
		*v.dst = n
	}

	if raw := os.Getenv("RETAIN_ON_FAILURE"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETAIN_ON_FAILURE: %v", err)
		}
		cfg.RetainOnFailure = b
	}

	return cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those depend on the command being run.
func (c *Config) Validate() error {
	switch c.STTProvider {
	case "", "whisper", "google":
	default:
		return fmt.Errorf("config error: unknown 'stt_provider' %q", c.STTProvider)
	}

	switch c.AnalysisTier {
	case "", "auto", "lite", "standard", "advanced":
	default:
		return fmt.Errorf("config error: unknown 'analysis_tier' %q", c.AnalysisTier)
	}

	// Validate numeric ranges
	if c.TranscriptionTimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'transcription_timeout' must be non-negative")
	}
	if c.AnalysisTimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'analysis_timeout' must be non-negative")
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("config error: 'max_upload_mb' must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}

	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config error: invalid 'log_level': %w", err)
		}
	}

	// Validate file paths exist (if specified)
	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: credentials file not found: %s", c.GoogleCredentialsFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to layer file values over env values over built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	strs := []struct{ dst, def *string }{
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.UploadFolder, &defaults.UploadFolder},
		{&result.APIKey, &defaults.APIKey},
		{&result.AnalysisTier, &defaults.AnalysisTier},
		{&result.STTProvider, &defaults.STTProvider},
		{&result.OpenAIAPIKey, &defaults.OpenAIAPIKey},
		{&result.WhisperModel, &defaults.WhisperModel},
		{&result.GoogleLanguage, &defaults.GoogleLanguage},
		{&result.GoogleCredentialsFile, &defaults.GoogleCredentialsFile},
		{&result.AMQPURL, &defaults.AMQPURL},
		{&result.AMQPExchange, &defaults.AMQPExchange},
		{&result.LogLevel, &defaults.LogLevel},
	}
	for _, s := range strs {
		if *s.dst == "" {
			*s.dst = *s.def
		}
	}

	// Int fields: use default if zero
	if result.TranscriptionTimeoutSeconds == 0 {
		result.TranscriptionTimeoutSeconds = defaults.TranscriptionTimeoutSeconds
	}
	if result.AnalysisTimeoutSeconds == 0 {
		result.AnalysisTimeoutSeconds = defaults.AnalysisTimeoutSeconds
	}
	if result.MaxUploadMB == 0 {
		result.MaxUploadMB = defaults.MaxUploadMB
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	// Bool fields: true anywhere wins
	result.RetainOnFailure = result.RetainOnFailure || defaults.RetainOnFailure

	return result
}

// Load resolves the effective configuration: file values, then environment, then defaults.
// An empty path skips the file.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = *fileCfg
	}

	env, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	envWithDefaults := env.MergeWithDefaults(Defaults())
	cfg = cfg.MergeWithDefaults(envWithDefaults)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TranscriptionTimeout returns the transcription budget
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.TranscriptionTimeoutSeconds) * time.Second
}

// AnalysisTimeout returns the analysis budget
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// Level returns the parsed log level, info when unset or invalid
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
