// Package telemetry provides observability for MythOS provisioning runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) behind a single Telemetry bundle, and fans engine
// events out to subscribers through an EventPublisher.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	controller, err := engine.NewController(engine.Options{
//	    Sink: tel.Sink(),
//	    ...
//	})
//
// # Events
//
// EventPublisher implements engine.EventSink. Delivery is synchronous, so a
// subscriber sees events in the order the engine emitted them:
//
//	tel.Events.Subscribe(func(ctx context.Context, e *engine.Event) {
//	    fmt.Println(e.Type, e.Unit)
//	}, telemetry.FilterByType(engine.EventTypeStepFinished))
//
// Metrics and the debug log are subscribed automatically by NewTelemetry.
//
// # Metrics
//
// A provisioning run lives only as long as the CLI process, so metrics are
// not served over HTTP. When MetricsConfig.Textfile is set, Shutdown writes
// the registry in the node-exporter textfile format:
//
//	mythos_runs_total{status}
//	mythos_steps_total{pillar,status}
//	mythos_pillars_total{status}
//	mythos_policy_decisions_total{kind,decision}
//	mythos_step_duration_seconds{pillar}
//	mythos_last_run_timestamp_seconds{profile,status}
//
// # Tracing
//
// With tracing enabled, NewTracer installs the global provider; the engine
// creates a "provision" span per run and a span per step. Exporters are
// otlp (gRPC), stdout (written to stderr) and none.
package telemetry
