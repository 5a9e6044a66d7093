package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/call-transcriber/internal/config"
	"github.com/jonathan/call-transcriber/internal/progress"
	"github.com/jonathan/call-transcriber/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that accepts call uploads, runs the transcription pipeline and streams progress over WebSocket and SSE.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}
	log.SetFormatter(&logrus.JSONFormatter{})

	auth, err := config.LoadAuth()
	if err != nil {
		return fmt.Errorf("invalid auth configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := progress.NewHub(log, a.metrics)
	sinks := []progress.Sink{hub}

	if cfg.AMQPURL != "" {
		amqpSink, err := progress.DialAMQP(progress.AMQPConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange}, log, a.metrics)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		defer func() {
			if err := amqpSink.Close(); err != nil {
				log.WithError(err).Warn("Failed to close AMQP sink")
			}
		}()
		sinks = append(sinks, amqpSink)
	}

	coord, err := a.coordinator(sinks...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := server.New(server.Config{Port: cfg.Port}, server.Deps{
		Calls:     a.db,
		Users:     a.db,
		Uploader:  coord,
		Artifacts: a.store,
		Hub:       hub,
		Health:    a.db,
		JWT:       &auth.JWT,
		Passwords: &auth.Passwords,
		Logger:    log,
		Metrics:   a.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}
