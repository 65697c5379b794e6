package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/metric"
)

// ClientOption configures a Client. Options reject values the client
// cannot run with; NewClient reports the first such error.
type ClientOption func(*Client) error

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %v", errors.ErrInvalidConfig, name, d)
	}
	return nil
}

// WithMaxReconnects bounds reconnection attempts. -1 retries forever and 0
// disables reconnecting.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return fmt.Errorf("%w: max reconnects %d", errors.ErrInvalidConfig, n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnection attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return positive("reconnect wait", d)
	}
}

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return positive("timeout", d)
	}
}

// WithRequestTimeout sets the default timeout of KV store operations.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.requestTimeout = d
		return positive("request timeout", d)
	}
}

// WithDrainTimeout bounds how long Close waits for pending messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return positive("drain timeout", d)
	}
}

// WithMaxBackoff caps the circuit breaker backoff. Values under a second
// are raised to one.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.maxBackoff = max(d, time.Second)
		return nil
	}
}

// WithCredentials authenticates with a user and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("%w: username", errors.ErrMissingConfig)
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token == "" {
			return fmt.Errorf("%w: token", errors.ErrMissingConfig)
		}
		c.token = token
		return nil
	}
}

// WithName sets the connection name shown by the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection state and reconnects to the registry.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.metrics = registry.CoreMetrics()
		return nil
	}
}
