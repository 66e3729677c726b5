package telemetry

import (
	"context"
	"sync"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(ctx context.Context, event *engine.Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event *engine.Event) bool

// EventPublisher fans engine events out to subscribers. It implements
// engine.EventSink. Delivery is synchronous and in subscription order, so
// subscribers observe events in exactly the order the engine emitted them.
type EventPublisher struct {
	mu          sync.RWMutex
	subscribers []subscriberEntry
	filters     []EventFilter
	nextID      int
}

type subscriberEntry struct {
	id         int
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates an empty publisher.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

// Publish implements engine.EventSink.
func (ep *EventPublisher) Publish(ctx context.Context, event *engine.Event) {
	if event == nil {
		return
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return
		}
	}
	subs := make([]subscriberEntry, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range subs {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(ctx, event)
	}
}

// Subscribe registers a subscriber with an optional filter and returns an
// ID for Unsubscribe.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) int {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.nextID++
	ep.subscribers = append(ep.subscribers, subscriberEntry{
		id:         ep.nextID,
		subscriber: subscriber,
		filter:     filter,
	})
	return ep.nextID
}

// Unsubscribe removes a subscriber.
func (ep *EventPublisher) Unsubscribe(id int) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	for i, entry := range ep.subscribers {
		if entry.id == id {
			ep.subscribers = append(ep.subscribers[:i], ep.subscribers[i+1:]...)
			return
		}
	}
}

// AddFilter adds a global filter applied before any subscriber.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

// FilterByType returns a filter that only allows the given event types.
func FilterByType(types ...engine.EventType) EventFilter {
	allowed := make(map[engine.EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(event *engine.Event) bool {
		return allowed[event.Type]
	}
}

// FilterByLevel returns a filter for events at or above minLevel.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		engine.EventLevelInfo:    0,
		engine.EventLevelWarning: 1,
		engine.EventLevelError:   2,
	}
	minValue := levels[minLevel]
	return func(event *engine.Event) bool {
		return levels[event.Level] >= minValue
	}
}

// FilterByRunID returns a filter for events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event *engine.Event) bool {
		return event.RunID == runID
	}
}

// FilterByPillar returns a filter for events of one pillar.
func FilterByPillar(pillar string) EventFilter {
	return func(event *engine.Event) bool {
		return event.Pillar == pillar
	}
}

// LogSubscriber writes every event to the logger at a matching level.
func LogSubscriber(logger *Logger) EventSubscriber {
	return func(_ context.Context, event *engine.Event) {
		var e *zerolog.Event
		switch event.Level {
		case engine.EventLevelError:
			e = logger.zlog.Error()
		case engine.EventLevelWarning:
			e = logger.zlog.Warn()
		default:
			e = logger.zlog.Debug()
		}
		e = e.Str("event", string(event.Type)).Str("run_id", event.RunID)
		if event.Pillar != "" {
			e = e.Str("pillar", event.Pillar)
		}
		if event.Unit != "" {
			e = e.Str("unit", event.Unit)
		}
		if event.Decision != "" {
			e = e.Str("decision", string(event.Decision))
		}
		if event.Outcome != nil && event.Outcome.Diagnostic != "" {
			e = e.Str("diagnostic", event.Outcome.Diagnostic)
		}
		e.Msg(event.Message)
	}
}
