package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/warden/pkg/events"
)

// WatermillEventBus carries engine events over any watermill publisher and subscriber
// pair. All events share events.Topic; handlers are selected by the event type metadata.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu       sync.RWMutex
	handlers map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		handlers:   make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends event keyed by key (the workspace id) so a partitioned transport keeps
// one workspace's events in order.
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("evt-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

// Subscribe starts delivering messages to the registered handlers until ctx ends.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			if eb.dispatch(ctx, msg) {
				msg.Ack()
			} else {
				msg.Nack()
			}
		}
	}()

	return nil
}

// dispatch reports whether msg was handled, or needs no handling.
func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) bool {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, ok := eb.handlers[eventType]
	eb.mu.RUnlock()

	if !ok {
		return true
	}

	event, err := events.Decode(eventType, msg.Payload)
	if err != nil {
		return false
	}

	return handler(ctx, event) == nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}

	return eb.subscriber.Close()
}
