// Package mqttclient carries stage data and control messages over an MQTT
// broker. It offers the same publish/subscribe surface as natsclient, with
// dotted subjects mapped to slash-separated topics.
package mqttclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/metric"
)

// TransportName labels MQTT transport metrics.
const TransportName = "mqtt"

// Config holds broker connection settings.
type Config struct {
	Broker         string        `json:"broker" yaml:"broker" toml:"broker"`
	ClientID       string        `json:"client_id,omitempty" yaml:"client_id,omitempty" toml:"client_id,omitempty"`
	Username       string        `json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty"`
	Password       string        `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	QoS            byte          `json:"qos" yaml:"qos" toml:"qos"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty" toml:"connect_timeout,omitempty"`
	PublishTimeout time.Duration `json:"publish_timeout,omitempty" yaml:"publish_timeout,omitempty" toml:"publish_timeout,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics reports connection state and reconnects.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Client) { c.metrics = registry.CoreMetrics() }
}

// WithConnectionHandler is called with true on every (re)connect and with
// false when the connection drops or the client closes.
func WithConnectionHandler(fn func(bool)) Option {
	return func(c *Client) { c.onChange = fn }
}

// WithPahoClient replaces the broker client, for tests.
func WithPahoClient(pc mqtt.Client) Option {
	return func(c *Client) { c.client = pc }
}

// Client is an MQTT publish/subscribe transport.
type Client struct {
	cfg      Config
	client   mqtt.Client
	logger   *slog.Logger
	metrics  *metric.Metrics
	onChange func(bool)

	mu        sync.Mutex
	subs      map[string]mqtt.MessageHandler
	connected bool
	everUp    bool
}

// New builds a client. No connection is made until Connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: broker", errors.ErrMissingConfig), "mqttclient", "New", "config check")
	}
	if cfg.QoS > 2 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: qos %d", errors.ErrInvalidConfig, cfg.QoS), "mqttclient", "New", "config check")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "zipstage-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	c := &Client{cfg: cfg, logger: slog.Default(), subs: make(map[string]mqtt.MessageHandler)}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "mqttclient", "broker", cfg.Broker, "client_id", cfg.ClientID)

	if c.client == nil {
		po := mqtt.NewClientOptions()
		po.AddBroker(cfg.Broker)
		po.SetClientID(cfg.ClientID)
		po.SetUsername(cfg.Username)
		po.SetPassword(cfg.Password)
		po.SetAutoReconnect(true)
		po.SetConnectRetry(true)
		po.SetConnectRetryInterval(2 * time.Second)
		po.SetMaxReconnectInterval(30 * time.Second)
		po.SetOnConnectHandler(func(mqtt.Client) { c.onConnect() })
		po.SetConnectionLostHandler(func(_ mqtt.Client, err error) { c.onConnectionLost(err) })
		c.client = mqtt.NewClient(po)
	}
	return c, nil
}

func (c *Client) onConnect() {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return
	}
	reconnect := c.everUp
	c.connected, c.everUp = true, true
	c.mu.Unlock()

	c.metrics.RecordTransportStatus(TransportName, true)
	c.notify(true)
	if reconnect {
		c.metrics.RecordTransportReconnect(TransportName)
	}
	c.logger.Info("MQTT connection established", "reconnect", reconnect)
	if reconnect {
		go c.resubscribe()
	}
}

// resubscribe restores every subscription after the broker dropped the
// session. It runs off the paho callback goroutine so token waits cannot
// stall the connection handler.
func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]mqtt.MessageHandler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		token := c.client.Subscribe(topic, c.cfg.QoS, h)
		if err := c.wait(context.Background(), token, c.cfg.ConnectTimeout); err != nil {
			c.logger.Error("Resubscribe failed", "topic", topic, "error", err)
			continue
		}
		c.logger.Debug("Resubscribed", "topic", topic)
	}
}

func (c *Client) onConnectionLost(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.metrics.RecordTransportStatus(TransportName, false)
	c.notify(false)
	c.logger.Warn("MQTT connection lost, will auto-reconnect", "error", err)
}

func (c *Client) notify(up bool) {
	if c.onChange != nil {
		c.onChange(up)
	}
}

// Topic maps a dotted subject to an MQTT topic.
func Topic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// Connect dials the broker and waits up to the connect timeout or ctx.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to MQTT broker")
	if err := c.wait(ctx, c.client.Connect(), c.cfg.ConnectTimeout); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrNoConnection, err), "mqttclient", "Connect", "connect")
	}
	c.onConnect()
	return nil
}

// IsConnected reports broker connectivity.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.client.IsConnected()
}

// Publish sends data to the topic for subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if !c.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "mqttclient", "Publish", subject)
	}
	topic := Topic(subject)
	if err := c.wait(ctx, c.client.Publish(topic, c.cfg.QoS, false, data), c.cfg.PublishTimeout); err != nil {
		return errors.WrapTransient(err, "mqttclient", "Publish", topic)
	}
	c.logger.Debug("Published", "topic", topic, "size", len(data))
	return nil
}

// Subscribe registers handler for the topic of subject. Each call gets a
// context derived from ctx with a 30-second timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if !c.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "mqttclient", "Subscribe", subject)
	}
	topic := Topic(subject)
	cb := func(_ mqtt.Client, msg mqtt.Message) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Payload())
	}
	token := c.client.Subscribe(topic, c.cfg.QoS, cb)
	if err := c.wait(ctx, token, c.cfg.ConnectTimeout); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err), "mqttclient", "Subscribe", topic)
	}

	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	c.logger.Debug("Subscribed", "topic", topic)
	return nil
}

// Close unsubscribes and disconnects with a 250ms grace period.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.subs = make(map[string]mqtt.MessageHandler)
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	var err error
	if wasConnected && c.client.IsConnected() {
		if len(topics) > 0 {
			err = c.wait(ctx, c.client.Unsubscribe(topics...), c.cfg.ConnectTimeout)
		}
		c.client.Disconnect(250)
		c.logger.Info("MQTT disconnected")
	}
	c.metrics.RecordTransportStatus(TransportName, false)
	if wasConnected {
		c.notify(false)
	}
	if err != nil {
		return errors.Wrap(err, "mqttclient", "Close", "unsubscribe")
	}
	return nil
}

func (c *Client) wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.ErrConnectionTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
