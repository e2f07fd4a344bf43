package main

import (
	"context"
	"log/slog"

	"github.com/dukex/warden/pkg/eventbus"
	"github.com/dukex/warden/pkg/events"
)

// subscribeActivityLog logs every lifecycle event that comes back from the bus.
func subscribeActivityLog(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	logger = logger.With("module", "activity")

	for _, eventType := range []events.EventType{
		events.PlanCreatedEvent,
		events.PlanDeniedEvent,
		events.RunFinishedEvent,
		events.AuditRolledBackEvent,
	} {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.InfoContext(ctx, "Lifecycle event", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
