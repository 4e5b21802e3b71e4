// Package events fans domain events out to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Header keys carried on every message.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON events to a single topic, keyed so that all events of
// one professional land on the same partition.
type Publisher struct {
	writer messageWriter
	logger zerolog.Logger
}

type PublisherConfig struct {
	Brokers []string
	Topic   string
	// Async hands messages to a background batcher; delivery failures are
	// logged, not returned.
	Async bool
}

func NewPublisher(cfg PublisherConfig, logger zerolog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	logger = logger.With().Str("component", "events").Str("topic", cfg.Topic).Logger()
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Async:                  cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn().Err(err).Int("messages", len(messages)).Msg("kafka delivery failed")
			}
		},
	}
	return newPublisher(w, logger), nil
}

func newPublisher(w messageWriter, logger zerolog.Logger) *Publisher {
	return &Publisher{writer: w, logger: logger}
}

// Publish encodes payload as JSON and writes it with event_id and event_type
// headers.
func (p *Publisher) Publish(ctx context.Context, key, eventType string, payload interface{}) error {
	msg, err := NewMessage(key, eventType, payload)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	p.logger.Debug().Str("event_type", eventType).Str("key", key).Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NewMessage builds the Kafka message for one event.
func NewMessage(key, eventType string, payload interface{}) (kafka.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(uuid.New().String())},
			{Key: HeaderEventType, Value: []byte(eventType)},
		},
		Time: time.Now().UTC(),
	}, nil
}

// HeaderValue returns the value of header key, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
