package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/warden/pkg/channels/gochannel"
	"github.com/dukex/warden/pkg/channels/kafka"
	"github.com/dukex/warden/pkg/eventbus"
)

// ErrUnsupportedEventBus is returned for unknown event bus providers.
var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus creates the lifecycle event bus. The gochannel provider keeps events in
// process; kafka needs at least one broker.
//
//nolint:ireturn // callers only need the EventBus interface
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, brokers, "warden")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventBus, provider)
	}
}
