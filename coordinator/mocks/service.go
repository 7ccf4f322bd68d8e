package mocks

import (
	"context"
	"time"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Advance(ctx context.Context) (coordinator.RoundState, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.RoundState), args.Error(1)
}

func (m *MockService) Ingest(ctx context.Context, msg protocol.Message, sender string) error {
	args := m.Called(ctx, msg, sender)
	return args.Error(0)
}

func (m *MockService) PollChannel(ctx context.Context, timeout time.Duration) (channel.Delivery, error) {
	args := m.Called(ctx, timeout)
	return args.Get(0).(channel.Delivery), args.Error(1)
}

// Status returns the session snapshot
func (m *MockService) Status(ctx context.Context) (coordinator.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Status), args.Error(1)
}

// Model returns the current global parameters
func (m *MockService) Model(ctx context.Context) (coordinator.Model, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Model), args.Error(1)
}
