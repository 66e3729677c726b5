package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: true,
		},
		{
			name: "unknown exporter ignored when disabled",
			mutate: func(c *Config) {
				c.Tracing.Exporter = "zipkin"
			},
		},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("engine").WithRunID("run-1").WithPillar("gaming").Info("started")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"run_id":"run-1"`, `"pillar":"gaming"`, `"message":"started"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message not written")
	}
}

func TestFromContextDefault(t *testing.T) {
	// Must not panic without a logger in the context.
	FromContext(context.Background()).Info("discarded")

	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &bytes.Buffer{})
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestEventPublisherOrder(t *testing.T) {
	publisher := NewEventPublisher()

	var got []string
	publisher.Subscribe(func(_ context.Context, e *engine.Event) {
		got = append(got, "a:"+string(e.Type))
	}, nil)
	publisher.Subscribe(func(_ context.Context, e *engine.Event) {
		got = append(got, "b:"+string(e.Type))
	}, nil)

	ctx := context.Background()
	publisher.Publish(ctx, &engine.Event{Type: engine.EventTypeRunStarted})
	publisher.Publish(ctx, &engine.Event{Type: engine.EventTypeRunFinished})

	want := []string{"a:run.started", "b:run.started", "a:run.finished", "b:run.finished"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("delivery order = %v, want %v", got, want)
	}
}

func TestEventPublisherFilters(t *testing.T) {
	publisher := NewEventPublisher()

	count := 0
	id := publisher.Subscribe(func(context.Context, *engine.Event) { count++ }, FilterByPillar("gaming"))
	publisher.AddFilter(FilterByLevel(engine.EventLevelWarning))

	ctx := context.Background()
	publisher.Publish(ctx, &engine.Event{Pillar: "gaming", Level: engine.EventLevelInfo})
	publisher.Publish(ctx, &engine.Event{Pillar: "gaming", Level: engine.EventLevelError})
	publisher.Publish(ctx, &engine.Event{Pillar: "developer", Level: engine.EventLevelError})
	publisher.Publish(ctx, nil)

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	publisher.Unsubscribe(id)
	publisher.Publish(ctx, &engine.Event{Pillar: "gaming", Level: engine.EventLevelError})
	if count != 1 {
		t.Errorf("count after unsubscribe = %d, want 1", count)
	}
}

func TestFilterByRunID(t *testing.T) {
	filter := FilterByRunID("run-1")
	if !filter(&engine.Event{RunID: "run-1"}) {
		t.Error("expected matching run to pass")
	}
	if filter(&engine.Event{RunID: "run-2"}) {
		t.Error("expected other run to be filtered")
	}
}

func TestMetricsObserve(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	failed := engine.Failed("exit status 1")
	failed.Duration = 2 * time.Second
	ok := engine.Succeeded()

	m.Observe(ctx, &engine.Event{Type: engine.EventTypeStepFinished, Kind: engine.UnitBootstrap, Outcome: &ok})
	m.Observe(ctx, &engine.Event{Type: engine.EventTypeStepFinished, Kind: engine.UnitStep, Pillar: "gaming", Outcome: &failed})
	m.Observe(ctx, &engine.Event{Type: engine.EventTypeStepFinished, Kind: engine.UnitStep, Pillar: "gaming"})
	m.Observe(ctx, &engine.Event{Type: engine.EventTypeDecisionMade, Kind: engine.UnitStep, Decision: engine.DecisionContinue})
	m.Observe(ctx, &engine.Event{Type: engine.EventTypePillarMissing, Status: string(engine.PillarStatusMissing)})
	m.Observe(ctx, &engine.Event{Type: engine.EventTypeRunFinished, Profile: "gamer", Status: "completed", Timestamp: time.Unix(1000, 0)})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"bootstrap steps", testutil.ToFloat64(m.steps.WithLabelValues("bootstrap", "success")), 1},
		{"failed steps", testutil.ToFloat64(m.steps.WithLabelValues("gaming", "failure")), 1},
		{"decisions", testutil.ToFloat64(m.decisions.WithLabelValues("step", "continue")), 1},
		{"missing pillars", testutil.ToFloat64(m.pillars.WithLabelValues("missing")), 1},
		{"runs", testutil.ToFloat64(m.runs.WithLabelValues("completed")), 1},
		{"last run", testutil.ToFloat64(m.lastRun.WithLabelValues("gamer", "completed")), 1000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if m.Enabled() {
		t.Error("expected disabled metrics")
	}
	m.Observe(context.Background(), &engine.Event{Type: engine.EventTypeRunFinished})
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Errorf("WriteTextfile() error = %v", err)
	}
}

func TestMetricsTextfile(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Textfile = filepath.Join(t.TempDir(), "mythos.prom")

	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.Observe(context.Background(), &engine.Event{Type: engine.EventTypeRunFinished, Profile: "gamer", Status: "aborted"})

	if err := m.WriteTextfile(""); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(cfg.Textfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `mythos_runs_total{status="aborted"} 1`) {
		t.Errorf("textfile missing run counter:\n%s", data)
	}
}

func TestNewTelemetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = filepath.Join(t.TempDir(), "mythos.log")
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("FromTelemetryContext did not return the bundle")
	}

	tel.Sink().Publish(ctx, &engine.Event{Type: engine.EventTypeRunFinished, Status: "completed", Message: "run finished"})
	if got := testutil.ToFloat64(tel.Metrics.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("runs_total = %v, want 1", got)
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(cfg.Logging.Output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"event":"run.finished"`) {
		t.Errorf("event not logged: %s", data)
	}
}

func TestNewTracerDisabled(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{}, "mythos", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	ctx, span := tracer.Start(context.Background(), "noop")
	RecordError(span, engine.NewRecoverableError("boom", nil))
	RecordSuccess(span)
	span.End()

	if TraceID(ctx) != "" {
		t.Error("expected no trace id from the no-op provider")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewTracerUnknownExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}, "mythos", "dev", "test")
	if err == nil {
		t.Error("expected error for unknown exporter")
	}
}
