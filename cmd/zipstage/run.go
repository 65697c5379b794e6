package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/c360/zipstage/component"
	"github.com/c360/zipstage/config"
	"github.com/c360/zipstage/health"
	"github.com/c360/zipstage/metric"
)

// runDaemon loads configuration, connects the transport, runs the stages
// and shuts everything down when ctx is cancelled.
func runDaemon(ctx context.Context, opts *cliOptions, logOut io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	slog.SetDefault(logger)
	logger.Info("Starting zipstage",
		"build_time", BuildTime,
		"config", opts.configPaths,
		"transport", cfg.Transport.Kind,
		"stages", len(cfg.EnabledStages()))

	registry, err := builtinRegistry()
	if err != nil {
		return err
	}
	if err := checkStageTypes(cfg, registry); err != nil {
		return err
	}

	metricsRegistry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor(appName)

	var server *metric.Server
	if cfg.Metrics.Enabled {
		server = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, metricsRegistry, monitor)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = server.Stop() }()
		logger.Info("Metrics server listening", "addr", server.Address(), "path", cfg.Metrics.Path)
	}

	conn, err := connectTransport(ctx, cfg.Transport, metricsRegistry, monitor, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		if err := conn.close(closeCtx); err != nil {
			logger.Warn("Transport close failed", "error", err)
		}
	}()

	deps := component.Dependencies{MetricsRegistry: metricsRegistry, Logger: logger}
	p, err := buildPipeline(ctx, cfg, registry, conn.transport, deps, monitor)
	if err != nil {
		return err
	}

	var props *config.PropertyManager
	if cfg.Properties.Enabled && conn.nats != nil {
		props, err = config.NewPropertyManager(ctx, conn.nats, cfg.Properties, p.lookup, logger)
		if err != nil {
			_ = p.stop(context.Background())
			return fmt.Errorf("property manager: %w", err)
		}
		if err := props.Start(ctx); err != nil {
			_ = p.stop(context.Background())
			return fmt.Errorf("start property manager: %w", err)
		}
	}

	runErr := p.start(ctx)
	if runErr == nil {
		logger.Info("zipstage started", "stages", p.stages())
		runErr = wait(ctx, server)
	}

	logger.Info("Shutting down", "timeout", opts.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()

	if props != nil {
		if err := props.Stop(shutdownBudget(shutdownCtx, opts.shutdownTimeout)); err != nil {
			logger.Warn("Property manager stop failed", "error", err)
		}
		applied, rejected := props.Counts()
		logger.Info("Property updates", "applied", applied, "rejected", rejected)
	}
	if err := p.stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if runErr == nil {
		logger.Info("zipstage shutdown complete")
	}
	return runErr
}

// wait blocks until ctx is done or the metrics server fails.
func wait(ctx context.Context, server *metric.Server) error {
	var serverErr <-chan error
	if server != nil {
		serverErr = server.Err()
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	}
}

// shutdownBudget is the time left for shutdown under ctx, capped at timeout.
func shutdownBudget(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			return remaining
		}
	}
	return timeout
}
