package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/jonathan/call-transcriber/internal/metrics"
)

// DefaultExchange is the topic exchange progress events are published on
const DefaultExchange = "call_progress"

// RoutingKeyPrefix prefixes every routing key
const RoutingKeyPrefix = "progress."

// AMQPConfig holds AMQP sink configuration
type AMQPConfig struct {
	URL      string
	Exchange string
}

type amqpPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes progress events to a topic exchange so other services can follow uploads
type AMQPSink struct {
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel amqpPublisher
}

// DialAMQP connects to the broker and declares the topic exchange
func DialAMQP(cfg AMQPConfig, logger *logrus.Logger, m *metrics.Metrics) (*AMQPSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("AMQP URL not configured")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial: amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare AMQP exchange: %w", err)
	}

	logger.WithField("exchange", cfg.Exchange).Info("Connected to AMQP server")

	sink := newAMQPSink(ch, cfg.Exchange, logger, m)
	sink.conn = conn
	return sink, nil
}

func newAMQPSink(ch amqpPublisher, exchange string, logger *logrus.Logger, m *metrics.Metrics) *AMQPSink {
	return &AMQPSink{
		logger:   logger,
		metrics:  m,
		exchange: exchange,
		channel:  ch,
	}
}

// Name returns the sink name
func (s *AMQPSink) Name() string {
	return "amqp"
}

// RoutingKey maps a progress channel to a topic routing key
func RoutingKey(channel string) string {
	// Dots separate topic words; keep a session id as a single word
	return RoutingKeyPrefix + strings.ReplaceAll(channel, ".", "_")
}

// Emit publishes the event as a transient JSON message
func (s *AMQPSink) Emit(channel string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         event.Type,
		DeliveryMode: amqp.Transient,
		Timestamp:    event.Timestamp,
		Headers: amqp.Table{
			"session_id": event.SessionID,
			"stage":      string(event.Stage),
		},
		Body: body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel == nil {
		s.metrics.RecordAMQPPublish("closed")
		return fmt.Errorf("AMQP sink is closed")
	}
	if err := s.channel.Publish(s.exchange, RoutingKey(channel), false, false, msg); err != nil {
		s.metrics.RecordAMQPPublish("error")
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	s.metrics.RecordAMQPPublish("ok")
	return nil
}

// Close closes the channel and connection
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.channel != nil {
		firstErr = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.conn = nil
	}
	s.logger.Info("Disconnected from AMQP server")
	return firstErr
}
