package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Decode unmarshals payload into the concrete event struct registered for eventType.
func Decode(eventType EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case PlanCreatedEvent:
		event = &PlanCreated{}
	case PlanDeniedEvent:
		event = &PlanDenied{}
	case RunFinishedEvent:
		event = &RunFinished{}
	case AuditRolledBackEvent:
		event = &AuditRolledBack{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
