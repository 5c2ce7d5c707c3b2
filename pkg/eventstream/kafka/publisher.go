// Package kafka publishes exchange events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/parley/pkg/eventstream"
)

const (
	// DefaultTopic is used when Config.Topic is empty.
	DefaultTopic = "parley.exchanges"

	defaultBatchTimeout = 50 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses ("host:port").
	Brokers []string

	// Topic receives the events. Defaults to DefaultTopic.
	Topic string

	// WriteTimeout bounds each produce call. Defaults to 10s.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes ExchangeEvents as JSON messages keyed by event id.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka-backed eventstream publisher. Connections are
// made lazily on the first publish.
func NewPublisher(c Config, logger *slog.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writeTimeout := c.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           defaultBatchTimeout,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka event publisher configured",
		"brokers", c.Brokers,
		"topic", topic,
	)

	return newPublisher(w, topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger,
	}
}

// PublishExchange encodes event as JSON and writes it to the topic.
func (p *Publisher) PublishExchange(ctx context.Context, event *eventstream.ExchangeEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding exchange event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.EventID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing exchange event to %s: %w", p.topic, err)
	}

	p.logger.Debug("published exchange event",
		"topic", p.topic,
		"event_id", event.EventID,
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
