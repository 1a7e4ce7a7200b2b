package notify

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	published    []*Notification
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		published: make([]*Notification, 0),
	}
}

// Publish records the notification and returns any configured error.
func (m *MockPublisher) Publish(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.published = append(m.published, n)
	return nil
}

// PublishBatch records the notifications, skipping them all if a publish
// error is configured, mirroring the best-effort batch semantics.
func (m *MockPublisher) PublishBatch(ctx context.Context, ns []*Notification) error {
	for _, n := range ns {
		if err := m.Publish(ctx, n); err != nil {
			continue
		}
	}
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns all published notifications (for testing).
func (m *MockPublisher) Published() []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	out := make([]*Notification, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedCount returns the number of published notifications.
func (m *MockPublisher) PublishedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.published)
}

// PublishedForWallet returns notifications published for a wallet nickname.
func (m *MockPublisher) PublishedForWallet(nickname string) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Notification, 0)
	for _, n := range m.published {
		if n.Wallet == nickname {
			out = append(out, n)
		}
	}
	return out
}

// SetPublishError configures the mock to return an error on Publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published notifications and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = make([]*Notification, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
