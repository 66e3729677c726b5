package telemetry

import (
	"context"
	"fmt"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for provisioning runs. Runs are short
// lived, so metrics are written to a node-exporter textfile instead of being
// scraped.
type Metrics struct {
	config MetricsConfig

	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	pillars      *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lastRun      *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of provisioning runs by final status",
			},
			[]string{"status"},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of steps executed",
			},
			[]string{"pillar", "status"},
		),
		pillars: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pillars_total",
				Help:      "Total number of pillars finished by status",
			},
			[]string{"status"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Total number of failure policy decisions",
			},
			[]string{"kind", "decision"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"pillar"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"profile", "status"},
		),
	}

	collectors := []prometheus.Collector{
		m.runs, m.steps, m.pillars, m.decisions, m.stepDuration, m.lastRun,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Enabled reports whether metrics are collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Registry returns the Prometheus registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records an engine event. It is an EventSubscriber.
func (m *Metrics) Observe(_ context.Context, event *engine.Event) {
	if !m.Enabled() {
		return
	}

	switch event.Type {
	case engine.EventTypeStepFinished:
		if event.Outcome == nil {
			return
		}
		pillar := event.Pillar
		if event.Kind == engine.UnitBootstrap {
			pillar = string(engine.UnitBootstrap)
		}
		m.steps.WithLabelValues(pillar, string(event.Outcome.Status)).Inc()
		m.stepDuration.WithLabelValues(pillar).Observe(event.Outcome.Duration.Seconds())

	case engine.EventTypePillarFinished, engine.EventTypePillarMissing:
		m.pillars.WithLabelValues(event.Status).Inc()

	case engine.EventTypeDecisionMade:
		m.decisions.WithLabelValues(string(event.Kind), string(event.Decision)).Inc()

	case engine.EventTypeRunFinished:
		m.runs.WithLabelValues(event.Status).Inc()
		m.lastRun.WithLabelValues(event.Profile, event.Status).Set(float64(event.Timestamp.Unix()))
	}
}

// WriteTextfile writes all metrics to path atomically in the text exposition
// format read by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.Enabled() {
		return nil
	}
	if path == "" {
		path = m.config.Textfile
	}
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
