// Package eventbus publishes and consumes engine lifecycle events over watermill.
package eventbus

import (
	"context"

	"github.com/dukex/warden/pkg/events"
)

// Event is a lifecycle event emitted by the engine.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. The key is the workspace id, which keeps the events of
// one workspace on one partition.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes incoming events to handlers registered per event type.
// Subscribe starts consuming in the background until ctx is done.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a decoded event. Returning an error nacks the message.
type EventHandler func(ctx context.Context, event any) error

// EventBus is the engine's view of the message broker.
type EventBus interface {
	EventPublisher
	EventSubscriber

	Close() error

	// GenerateID returns a fresh message id.
	GenerateID() string
}
