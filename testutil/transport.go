package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTransport is an in-memory publish/subscribe transport. Publish
// delivers to every handler of the exact subject on the calling goroutine.
// Safe for concurrent use.
type MockTransport struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]func(context.Context, []byte)
	closed        bool
}

// NewMockTransport creates an empty transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
	}
}

// Publish stores data and delivers it to subscribers.
func (t *MockTransport) Publish(ctx context.Context, subject string, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.messages[subject] = append(t.messages[subject], data)

	// Handlers run outside the lock so they may publish.
	subs := t.subscriptions[subject]
	handlers := make([]func(context.Context, []byte), len(subs))
	copy(handlers, subs)
	t.mu.Unlock()

	for _, handler := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, data)
		cancel()
	}
	return nil
}

// Subscribe registers handler for subject.
func (t *MockTransport) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	t.subscriptions[subject] = append(t.subscriptions[subject], handler)
	return nil
}

// Messages returns a copy of everything published on subject.
func (t *MockTransport) Messages(subject string) [][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msgs := t.messages[subject]
	if msgs == nil {
		return nil
	}
	out := make([][]byte, len(msgs))
	copy(out, msgs)
	return out
}

// MessageCount returns the number of messages published on subject.
func (t *MockTransport) MessageCount(subject string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages[subject])
}

// Subscribed reports whether subject has at least one handler.
func (t *MockTransport) Subscribed(subject string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscriptions[subject]) > 0
}

// Clear forgets stored messages on subject.
func (t *MockTransport) Clear(subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.messages, subject)
}

// Close rejects further publishes and subscriptions.
func (t *MockTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subscriptions = make(map[string][]func(context.Context, []byte))
}
