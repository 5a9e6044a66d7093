package progress

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/call-transcriber/internal/metrics"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakePublisher) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSink_Emit(t *testing.T) {
	pub := &fakePublisher{}
	sink := newAMQPSink(pub, DefaultExchange, quietLogger(), metrics.New())

	b := NewBroadcaster(quietLogger(), nil, sink)
	b.Publish("sess-1", StageProcessing, 25, "Creating call record...")

	require.Len(t, pub.sent, 2)
	assert.Equal(t, DefaultExchange, pub.sent[0].exchange)
	assert.Equal(t, "progress.sess-1", pub.sent[0].key)
	assert.Equal(t, "progress.global", pub.sent[1].key)

	msg := pub.sent[0].msg
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, TypeProgress, msg.Type)
	assert.Equal(t, "sess-1", msg.Headers["session_id"])

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, 25, ev.Progress)
	assert.Equal(t, StageProcessing, ev.Stage)
}

func TestAMQPSink_Errors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	sink := newAMQPSink(pub, DefaultExchange, quietLogger(), nil)

	err := sink.Emit("sess-1", NewEvent("sess-1", StageSaving, 90, "Saving results..."))
	assert.Error(t, err)

	require.NoError(t, sink.Close())
	assert.True(t, pub.closed)
	assert.Error(t, sink.Emit("sess-1", Event{}))
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "progress.global", RoutingKey(GlobalChannel))
	assert.Equal(t, "progress.abc-123", RoutingKey("abc-123"))
	assert.Equal(t, "progress.a_b_c", RoutingKey("a.b.c"))
}

func TestDialAMQP_RequiresURL(t *testing.T) {
	_, err := DialAMQP(AMQPConfig{}, quietLogger(), nil)
	assert.Error(t, err)
}
