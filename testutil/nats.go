package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrMockClosed is returned by a closed MockNATSClient.
var ErrMockClosed = errors.New("mock nats client closed")

type mockMessage struct {
	subject string
	data    []byte
}

// MockNATSClient stands in for natsclient.Client in listener tests.
// Publish hands the message to every handler on the exact subject before
// returning; wildcards are not expanded.
type MockNATSClient struct {
	mu        sync.Mutex
	published []mockMessage
	handlers  map[string][]func(context.Context, []byte)
	closed    bool
}

// NewMockNATSClient returns an open mock with no subscriptions.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{handlers: make(map[string][]func(context.Context, []byte))}
}

// Publish records data and delivers it synchronously.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrMockClosed
	}
	c.published = append(c.published, mockMessage{subject: subject, data: data})
	handlers := append([]func(context.Context, []byte){}, c.handlers[subject]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ctx, data)
	}
	return nil
}

// Subscribe registers handler for subject.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrMockClosed
	}
	c.handlers[subject] = append(c.handlers[subject], handler)
	return nil
}

// Subscriptions counts the handlers registered for subject.
func (c *MockNATSClient) Subscriptions(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[subject])
}

// Published returns the payloads published on subject, oldest first.
func (c *MockNATSClient) Published(subject string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out [][]byte
	for _, m := range c.published {
		if m.subject == subject {
			out = append(out, m.data)
		}
	}
	return out
}

// Close makes further Publish and Subscribe calls fail.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
