package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mythos-linux/mythos/pkg/engine"
)

// Telemetry bundles logging, tracing, metrics and event publishing for one
// CLI invocation.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration. Metrics
// are subscribed to the event publisher; events are also logged at debug
// level.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return newTelemetry(cfg, logger)
}

// NewTelemetryWithLogger is NewTelemetry with an existing logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events := NewEventPublisher()
	events.Subscribe(metrics.Observe, nil)
	events.Subscribe(LogSubscriber(logger.NewComponentLogger("events")), nil)

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// Sink returns the publisher as an engine.EventSink.
func (t *Telemetry) Sink() engine.EventSink {
	return t.Events
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown writes the metrics textfile and flushes traces.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Metrics.WriteTextfile(""); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracer: %w", err))
	}
	return errors.Join(errs...)
}
