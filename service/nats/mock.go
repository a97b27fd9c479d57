package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*SessionEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*SessionEvent, 0),
	}
}

// PublishSessionEvent records the event and returns any configured error.
func (m *MockPublisher) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*SessionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*SessionEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsOfKind returns the published events of one kind.
func (m *MockPublisher) GetPublishedEventsOfKind(kind EventKind) []*SessionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*SessionEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Kind == kind {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishSessionEvent.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// MockSource is a Source fed by the test through Send.
type MockSource struct {
	mu   sync.Mutex
	subs []chan *SessionEvent
	err  error
}

// NewMockSource creates a source with no subscribers.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// SetError makes subsequent Events calls fail with err.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Events registers a subscriber that is closed when ctx is done.
func (m *MockSource) Events(ctx context.Context) (<-chan *SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	ch := make(chan *SessionEvent, 10)
	m.subs = append(m.subs, ch)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// Subscribers returns the number of active Events calls.
func (m *MockSource) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Send delivers event to every active subscriber.
func (m *MockSource) Send(event *SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		sub <- event
	}
}
