// Package metrics exposes Prometheus instrumentation for the call pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors used by the pipeline, progress sinks and server.
// All methods are safe on a nil receiver so components can run uninstrumented.
type Metrics struct {
	registry *prometheus.Registry

	PipelineRuns     *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	StageTimeouts    *prometheus.CounterVec
	ProgressEvents   *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
	AMQPPublishes    *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_pipeline_runs_total",
				Help: "Total number of finished pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calls_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		StageTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_pipeline_stage_timeouts_total",
				Help: "Total number of stage budgets exceeded",
			},
			[]string{"stage"},
		),
		ProgressEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_progress_events_total",
				Help: "Total number of progress events emitted per sink",
			},
			[]string{"sink"},
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "calls_websocket_clients",
				Help: "Number of connected progress observers",
			},
		),
		AMQPPublishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_amqp_publishes_total",
				Help: "Total number of AMQP progress publishes by status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.PipelineRuns,
		m.StageDuration,
		m.StageTimeouts,
		m.ProgressEvents,
		m.WebsocketClients,
		m.AMQPPublishes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}

// RecordRun counts a finished pipeline run
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordTimeout counts a stage that exceeded its budget
func (m *Metrics) RecordTimeout(stage string) {
	if m == nil {
		return
	}
	m.StageTimeouts.WithLabelValues(stage).Inc()
}

// RecordEvent counts an event emitted to a sink
func (m *Metrics) RecordEvent(sink string) {
	if m == nil {
		return
	}
	m.ProgressEvents.WithLabelValues(sink).Inc()
}

// ClientConnected increments the observer gauge
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WebsocketClients.Inc()
}

// ClientDisconnected decrements the observer gauge
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WebsocketClients.Dec()
}

// RecordAMQPPublish counts an AMQP publish attempt
func (m *Metrics) RecordAMQPPublish(status string) {
	if m == nil {
		return
	}
	m.AMQPPublishes.WithLabelValues(status).Inc()
}
