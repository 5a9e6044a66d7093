package progress

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/metrics"
)

// Sink delivers events to one kind of observer
type Sink interface {
	Name() string
	Emit(channel string, event Event) error
}

// Publisher is what the pipeline needs from a Broadcaster
type Publisher interface {
	Publish(sessionID string, stage Stage, percent int, message string)
	PublishEvent(event Event)
}

// Broadcaster fans events out to every sink on the session and global channels.
// Delivery is best-effort: sink failures are logged and never returned.
type Broadcaster struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics
	sinks   []Sink
}

// NewBroadcaster creates a broadcaster over the given sinks. Nil sinks are skipped.
func NewBroadcaster(logger *logrus.Logger, m *metrics.Metrics, sinks ...Sink) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := &Broadcaster{logger: logger, metrics: m}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// Publish emits a progress event for the session
func (b *Broadcaster) Publish(sessionID string, stage Stage, percent int, message string) {
	b.PublishEvent(NewEvent(sessionID, stage, percent, message))
}

// PublishEvent emits a prepared event to the session channel and the global channel of every sink
func (b *Broadcaster) PublishEvent(event Event) {
	b.logger.WithFields(logrus.Fields{
		"session_id": event.SessionID,
		"stage":      event.Stage,
		"progress":   event.Progress,
	}).Debug(event.Message)

	for _, sink := range b.sinks {
		b.emit(sink, event.SessionID, event)
		b.emit(sink, GlobalChannel, event)
	}
}

func (b *Broadcaster) emit(sink Sink, channel string, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"sink":    sink.Name(),
				"channel": channel,
			}).Errorf("Progress sink panicked: %v", r)
		}
	}()

	if err := sink.Emit(channel, event); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"sink":    sink.Name(),
			"channel": channel,
		}).Warn("Failed to emit progress event")
		return
	}
	b.metrics.RecordEvent(sink.Name())
}

// String lists the configured sinks
func (b *Broadcaster) String() string {
	names := make([]string, len(b.sinks))
	for i, s := range b.sinks {
		names[i] = s.Name()
	}
	return fmt.Sprintf("Broadcaster%v", names)
}
