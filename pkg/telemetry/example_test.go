package telemetry_test

import (
	"context"
	"fmt"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/mythos-linux/mythos/pkg/telemetry"
)

// Example_eventSubscription demonstrates filtering engine events.
func Example_eventSubscription() {
	publisher := telemetry.NewEventPublisher()

	publisher.Subscribe(func(_ context.Context, e *engine.Event) {
		fmt.Printf("%s %s\n", e.Type, e.Unit)
	}, telemetry.FilterByType(engine.EventTypeStepFinished))

	ctx := context.Background()
	publisher.Publish(ctx, &engine.Event{Type: engine.EventTypeStepStarted, Unit: "gaming/steam"})
	publisher.Publish(ctx, &engine.Event{Type: engine.EventTypeStepFinished, Unit: "gaming/steam"})
	publisher.Publish(ctx, &engine.Event{Type: engine.EventTypeRunFinished})

	// Output:
	// step.finished gaming/steam
}

// Example_telemetry demonstrates wiring the bundle into an engine run.
func Example_telemetry() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	telemetry.FromContext(ctx).Debug("ready")

	var sink engine.EventSink = tel.Sink()
	sink.Publish(ctx, &engine.Event{
		Type:   engine.EventTypeRunFinished,
		Status: string(engine.RunStatusCompleted),
	})

	fmt.Println(tel.Metrics.Enabled())
	// Output:
	// true
}
