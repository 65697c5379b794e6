package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/zipstage/config"
	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/health"
	"github.com/c360/zipstage/host"
	"github.com/c360/zipstage/metric"
	"github.com/c360/zipstage/mqttclient"
	"github.com/c360/zipstage/natsclient"
	"github.com/c360/zipstage/pkg/retry"
)

// connection is a connected transport. nats is set only for the NATS
// transport, which also backs the property bucket.
type connection struct {
	transport host.Transport
	nats      *natsclient.Client
	close     func(context.Context) error
}

type connector interface {
	host.Transport
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
}

// connectTransport builds the configured client and connects it, retrying
// transient failures with the configured backoff. Connectivity changes are
// reported to monitor.
func connectTransport(
	ctx context.Context, cfg config.TransportConfig, registry *metric.MetricsRegistry,
	monitor *health.Monitor, logger *slog.Logger,
) (*connection, error) {
	var (
		client connector
		conn   = &connection{}
	)

	switch cfg.Kind {
	case config.TransportNATS:
		opts := []natsclient.ClientOption{
			natsclient.WithLogger(logger),
			natsclient.WithMetrics(registry),
			natsclient.WithName(appName),
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		}
		if cfg.NATS.ReconnectWait > 0 {
			opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
		}
		if cfg.NATS.RequestTimeout > 0 {
			opts = append(opts, natsclient.WithRequestTimeout(cfg.NATS.RequestTimeout))
		}
		if cfg.NATS.Username != "" {
			opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
		}
		if cfg.NATS.Token != "" {
			opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
		}
		nc, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
		if err != nil {
			return nil, errors.Wrap(err, "main", "connectTransport", "create NATS client")
		}
		tracker := health.NewTransport(string(cfg.Kind), func() string { return describeNATS(nc.GetStatus()) })
		nc.OnHealthChange(tracker.SetConnected)
		monitor.SetTransport(tracker)
		client, conn.nats = nc, nc
	case config.TransportMQTT:
		tracker := health.NewTransport(string(cfg.Kind), nil)
		monitor.SetTransport(tracker)
		mc, err := mqttclient.New(mqttclient.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		}, mqttclient.WithLogger(logger), mqttclient.WithMetrics(registry),
			mqttclient.WithConnectionHandler(tracker.SetConnected))
		if err != nil {
			return nil, errors.Wrap(err, "main", "connectTransport", "create MQTT client")
		}
		client = mc
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: transport %q", errors.ErrInvalidConfig, cfg.Kind),
			"main", "connectTransport", "transport kind")
	}

	rc := cfg.Retry.ToRetryConfig()
	rc.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Transport connection failed, retrying",
			"transport", cfg.Kind, "attempt", attempt, "wait", wait, "error", err)
	}
	err := retry.Do(ctx, rc, func() error {
		err := client.Connect(ctx)
		if err != nil && !errors.IsTransient(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "main", "connectTransport", fmt.Sprintf("connect %s", cfg.Kind))
	}

	conn.transport = client
	conn.close = client.Close
	logger.Info("Transport connected", "transport", cfg.Kind)
	return conn, nil
}

// describeNATS summarizes client status for the health report.
func describeNATS(st *natsclient.Status) string {
	if st.RTT > 0 {
		return fmt.Sprintf("%s, rtt %s", st.Status, st.RTT.Round(time.Microsecond))
	}
	if st.FailureCount > 0 {
		return fmt.Sprintf("%s, %d failed attempts", st.Status, st.FailureCount)
	}
	return st.Status.String()
}
