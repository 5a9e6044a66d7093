package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordRun("complete")
	m.RecordRun("complete")
	m.RecordRun("error")
	m.RecordTimeout("transcribing")
	m.RecordEvent("websocket")
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.ObserveStage("analyzing", 2*time.Second)
	m.RecordAMQPPublish("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageTimeouts.WithLabelValues("transcribing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProgressEvents.WithLabelValues("websocket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebsocketClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AMQPPublishes.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRun("complete")
		m.ObserveStage("saving", time.Second)
		m.RecordTimeout("analyzing")
		m.RecordEvent("amqp")
		m.ClientConnected()
		m.ClientDisconnected()
		m.RecordAMQPPublish("error")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordRun("complete")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `calls_pipeline_runs_total{outcome="complete"} 1`)
}
