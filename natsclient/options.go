package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/ngsiadapter/metric"
)

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithLogger sets the logger; nil keeps slog.Default
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithName sets the connection name shown by the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.settings.name = name
		return nil
	}
}

// WithCredentials authenticates with user and password
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.settings.username = username
		c.settings.password = password
		return nil
	}
}

// WithToken authenticates with a token
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.settings.token = token
		return nil
	}
}

// WithReconnect sets how often (-1 forever) and how far apart the client
// reconnects after losing the server.
func WithReconnect(maxReconnects int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnect wait must not be negative, got %v", wait)
		}
		c.settings.maxReconnects = maxReconnects
		c.settings.reconnectWait = wait
		return nil
	}
}

// WithTimeout bounds a single dial
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.settings.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds draining on Close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.settings.drainTimeout = d
		return nil
	}
}

// WithMessageTimeout bounds the context handed to subscription handlers
func WithMessageTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("message timeout must be positive, got %v", d)
		}
		c.settings.messageTimeout = d
		return nil
	}
}

// WithBreaker opens the circuit after threshold consecutive connect
// failures; the refusal window doubles up to maxBackoff.
func WithBreaker(threshold int, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("breaker threshold must be at least 1, got %d", threshold)
		}
		if maxBackoff < initialBackoff {
			maxBackoff = initialBackoff
		}
		c.breaker = newBreaker(threshold, maxBackoff)
		return nil
	}
}

// WithHealthChangeCallback is called with true on (re)connect and false
// on disconnect or close.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealth = fn
		return nil
	}
}

// WithMetrics registers connection metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		metrics, err := newConnMetrics(registry)
		if err != nil {
			return err
		}
		c.metrics = metrics
		return nil
	}
}
