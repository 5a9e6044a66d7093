package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/analysis"
	"github.com/jonathan/call-transcriber/internal/config"
	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/llm"
	"github.com/jonathan/call-transcriber/internal/metrics"
	"github.com/jonathan/call-transcriber/internal/pipeline"
	"github.com/jonathan/call-transcriber/internal/progress"
	"github.com/jonathan/call-transcriber/internal/storage"
	"github.com/jonathan/call-transcriber/internal/stt"
)

// app holds the components shared by serve and process
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	metrics *metrics.Metrics
	db      *db.DB
	store   *storage.LocalStore

	transcriber stt.Transcriber
	analyzer    analysis.Analyzer
	llmClient   llm.Client
}

// loadConfig reads the configuration and builds a logger at its level
func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logrus.New()
	log.SetLevel(cfg.Level())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return cfg, log, nil
}

// newApp connects to the database and builds the pipeline collaborators
func newApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*app, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = database

	if err := a.db.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if a.store, err = storage.NewLocalStore(cfg.UploadFolder); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to prepare upload folder: %w", err)
	}

	a.transcriber, err = stt.New(ctx, stt.Config{
		Provider:              cfg.STTProvider,
		OpenAIAPIKey:          cfg.OpenAIAPIKey,
		WhisperModel:          cfg.WhisperModel,
		GoogleLanguage:        cfg.GoogleLanguage,
		GoogleCredentialsFile: cfg.GoogleCredentialsFile,
	}, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	a.llmClient, err = llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	analyzer := analysis.NewLLMAnalyzer(a.llmClient, log)
	if tier, ok := llm.ParseTier(cfg.AnalysisTier); ok {
		analyzer = analyzer.WithTier(tier)
	}
	a.analyzer = analyzer

	log.WithFields(logrus.Fields{
		"stt":           cfg.STTProvider,
		"analysis_tier": cfg.AnalysisTier,
		"upload_folder": a.store.Dir(),
	}).Info("Components ready")
	return a, nil
}

// coordinator builds a pipeline coordinator publishing to sinks
func (a *app) coordinator(sinks ...progress.Sink) (*pipeline.Coordinator, error) {
	opts := pipeline.DefaultOptions()
	opts.MaxUploadBytes = a.cfg.MaxUploadBytes()
	opts.TranscriptionTimeout = a.cfg.TranscriptionTimeout()
	opts.AnalysisTimeout = a.cfg.AnalysisTimeout()
	opts.RetainOnFailure = a.cfg.RetainOnFailure

	return pipeline.New(pipeline.Deps{
		Calls:       a.db,
		Artifacts:   a.store,
		Transcriber: a.transcriber,
		Analyzer:    a.analyzer,
		Publisher:   progress.NewBroadcaster(a.log, a.metrics, sinks...),
		Logger:      a.log,
		Metrics:     a.metrics,
		Clock:       pipeline.RealClock(),
	}, opts)
}

// Close releases every component that holds a connection
func (a *app) Close() {
	if closer, ok := a.transcriber.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close transcriber")
		}
	}
	if a.llmClient != nil {
		if err := a.llmClient.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close LLM client")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
