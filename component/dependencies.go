package component

import (
	"log/slog"

	"github.com/c360/zipstage/metric"
	"github.com/c360/zipstage/stage"
)

// Dependencies provides the shared services stages are created with.
type Dependencies struct {
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// StageOptions converts the dependencies into stage options.
func (d *Dependencies) StageOptions() []stage.Option {
	return []stage.Option{
		stage.WithLogger(d.GetLogger()),
		stage.WithMetrics(d.MetricsRegistry),
	}
}
