// Package kafka provides a Kafka-backed eventstream publisher.
//
// Events are written as JSON messages keyed by scope id, so all lifecycle
// events for one scope land on the same partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/keepsake-sh/keepsake/pkg/eventstream"
)

// Config holds Kafka publisher settings.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the topic lifecycle events are published to.
	Topic string
}

// Publisher implements eventstream.Publisher on a kafka-go writer.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(config Config) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(config.Brokers...),
		Topic:    config.Topic,
		Balancer: &kafka.Hash{},
	}

	return &Publisher{writer: writer}, nil
}

// PublishFactEvent writes the event to the configured topic, keyed by
// scope id.
func (p *Publisher) PublishFactEvent(ctx context.Context, event *eventstream.FactLifecycleEvent) error {
	if event == nil {
		return eventstream.ErrNilFactEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal fact event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ScopeID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write fact event: %w", err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
