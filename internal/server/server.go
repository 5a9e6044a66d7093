package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/config"
	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/metrics"
	"github.com/jonathan/call-transcriber/internal/pipeline"
	"github.com/jonathan/call-transcriber/internal/progress"
	"github.com/jonathan/call-transcriber/internal/server/middleware"
	"github.com/jonathan/call-transcriber/internal/server/ratelimit"
)

// CallRepository is the call storage used by the API (*db.DB implements it)
type CallRepository interface {
	ListCalls(ctx context.Context, filters db.CallFilters) ([]db.Call, error)
	GetCall(ctx context.Context, id uuid.UUID) (*db.Call, error)
	UpdateCallTags(ctx context.Context, id uuid.UUID, tags []string) error
	DeleteCall(ctx context.Context, id uuid.UUID) error
	GetCallAnalytics(ctx context.Context) (*db.CallAnalytics, error)
}

// Uploader accepts uploads into the pipeline (*pipeline.Coordinator implements it)
type Uploader interface {
	Submit(ctx context.Context, sub pipeline.Submission) (pipeline.Receipt, error)
	MaxUploadBytes() int64
	AllowedExtensions() []string
	Wait() error
}

// ArtifactRemover deletes stored audio
type ArtifactRemover interface {
	Remove(path string) error
}

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the server exposes
type Deps struct {
	Calls     CallRepository
	Users     DBClient
	Uploader  Uploader
	Artifacts ArtifactRemover
	Hub       *progress.Hub
	Health    Pinger // optional

	JWT       *config.JWTConfig
	Passwords *config.PasswordConfig
	RateLimit *ratelimit.Config // nil loads the environment config

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Config holds server configuration
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	calls       CallRepository
	uploader    Uploader
	artifacts   ArtifactRemover
	hub         *progress.Hub
	health      Pinger
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	authHandler *AuthHandler
	metrics     *metrics.Metrics
	log         *logrus.Logger

	shutdownTimeout time.Duration
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Calls == nil:
		return nil, fmt.Errorf("call repository is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case deps.Uploader == nil:
		return nil, fmt.Errorf("uploader is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("progress hub is required")
	case deps.JWT == nil || deps.Passwords == nil:
		return nil, fmt.Errorf("JWT and password configuration are required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.RateLimit == nil {
		deps.RateLimit = ratelimit.LoadConfig()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		calls:           deps.Calls,
		uploader:        deps.Uploader,
		artifacts:       deps.Artifacts,
		hub:             deps.Hub,
		health:          deps.Health,
		rateLimiter:     ratelimit.NewLimiter(deps.RateLimit),
		jwtService:      NewJWTService(deps.JWT),
		metrics:         deps.Metrics,
		log:             deps.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.authHandler = NewAuthHandler(NewUserService(deps.Users, deps.Passwords), s.jwtService, s.log)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute, // large uploads
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: progress streams stay open for the whole run
	}

	return s, nil
}

// Handler returns the routed handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator(), middleware.Options{})
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", s.authHandler.Login)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Progress streams
	mux.HandleFunc("GET /ws/progress", s.hub.ServeWs)
	mux.HandleFunc("GET /api/progress/{session_id}", s.handleProgressStream)

	// Account
	mux.Handle("PUT /api/auth/password", protected(s.authHandler.UpdatePassword))
	mux.Handle("GET /api/auth/me", protected(s.authHandler.Me))

	// Calls
	mux.Handle("POST /api/calls", protected(s.handleUploadCall))
	mux.Handle("GET /api/calls", protected(s.handleListCalls))
	mux.Handle("GET /api/calls/analytics", protected(s.handleCallAnalytics))
	mux.Handle("GET /api/calls/{id}", protected(s.handleGetCall))
	mux.Handle("GET /api/calls/{id}/export", protected(s.handleExportCall))
	mux.Handle("PUT /api/calls/{id}/tags", protected(s.handleUpdateCallTags))
	mux.Handle("DELETE /api/calls/{id}", protected(s.handleDeleteCall))

	return ratelimit.Middleware(s.rateLimiter, s.log)(s.withLogging(s.withCORS(mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("Server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.rateLimiter.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown stops accepting requests, lets in-flight pipeline runs finish
// and then closes the progress streams
func (s *Server) Shutdown() error {
	s.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.rateLimiter.Stop()

	s.log.Info("Waiting for in-flight uploads to finish")
	if werr := s.uploader.Wait(); werr != nil {
		s.log.WithError(werr).Warn("Pipeline run ended with error during shutdown")
	}
	s.hub.Close()

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps SSE working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps websocket upgrades working through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).String(),
		}).Debug("Request completed")
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "call-transcriber",
		"status":  "running",
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("Error encoding JSON response")
	}
}

// writeError writes an error JSON response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
