package nats

import (
	"context"
	"sync"
)

// MockPublisher records published events in memory for tests.
type MockPublisher struct {
	mu     sync.Mutex
	events []*PurchaseEvent

	// PublishErr forces PublishPurchaseEvent to fail when set.
	PublishErr error
}

// NewMockPublisher creates an empty in-memory publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishPurchaseEvent(ctx context.Context, event *PurchaseEvent) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Events returns a copy of all published events.
func (m *MockPublisher) Events() []*PurchaseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PurchaseEvent, len(m.events))
	copy(out, m.events)
	return out
}
