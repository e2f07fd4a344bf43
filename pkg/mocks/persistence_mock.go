package mocks

import (
	"context"

	"github.com/dukex/warden/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockKV is a mock implementation of persistence.KV interface.
type MockKV struct {
	mock.Mock
}

func (m *MockKV) Load(ctx context.Context, namespace, key string, out any) (bool, error) {
	args := m.Called(ctx, namespace, key, out)

	return args.Bool(0), args.Error(1)
}

func (m *MockKV) Save(ctx context.Context, namespace, key string, value any) error {
	args := m.Called(ctx, namespace, key, value)

	return args.Error(0)
}

func (m *MockKV) Delete(ctx context.Context, namespace, key string) error {
	args := m.Called(ctx, namespace, key)

	return args.Error(0)
}

func (m *MockKV) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockKV) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.KV = (*MockKV)(nil)
