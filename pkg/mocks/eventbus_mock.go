package mocks

import (
	"context"

	"github.com/dukex/warden/pkg/eventbus"
	"github.com/dukex/warden/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// Published returns the events passed to Publish, in call order.
func (m *MockEventBus) Published() []eventbus.Event {
	out := make([]eventbus.Event, 0)

	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}

		if event, ok := call.Arguments.Get(2).(eventbus.Event); ok {
			out = append(out, event)
		}
	}

	return out
}

// PublishedTypes returns the type of every published event, in call order.
func (m *MockEventBus) PublishedTypes() []events.EventType {
	published := m.Published()

	out := make([]events.EventType, 0, len(published))
	for _, event := range published {
		out = append(out, event.GetType())
	}

	return out
}

var _ eventbus.EventBus = (*MockEventBus)(nil)
