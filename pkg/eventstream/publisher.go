package eventstream

import "context"

// Publisher publishes fact lifecycle events to an event stream backend.
type Publisher interface {
	PublishFactEvent(ctx context.Context, event *FactLifecycleEvent) error
	Close() error
}
