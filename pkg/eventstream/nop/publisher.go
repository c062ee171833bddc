package nop

import (
	"context"

	"github.com/keepsake-sh/keepsake/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishFactEvent validates input and otherwise does nothing.
func (p *Publisher) PublishFactEvent(_ context.Context, event *eventstream.FactLifecycleEvent) error {
	if event == nil {
		return eventstream.ErrNilFactEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
