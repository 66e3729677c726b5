package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of engine event.
type EventType string

const (
	EventTypeRunStarted     EventType = "run.started"
	EventTypeRunFinished    EventType = "run.finished"
	EventTypePhaseChanged   EventType = "phase.changed"
	EventTypeTraitMissing   EventType = "trait.missing"
	EventTypePillarStarted  EventType = "pillar.started"
	EventTypePillarFinished EventType = "pillar.finished"
	EventTypePillarMissing  EventType = "pillar.missing"
	EventTypeStepStarted    EventType = "step.started"
	EventTypeStepFinished   EventType = "step.finished"
	EventTypeDecisionMade   EventType = "decision.made"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event represents a timeline event during a run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID is the ID of the run this event belongs to.
	RunID string `json:"run_id"`

	// Profile is the profile being provisioned.
	Profile string `json:"profile,omitempty"`

	// Phase is the run phase when the event was emitted.
	Phase Phase `json:"phase,omitempty"`

	// Pillar is the pillar, if applicable.
	Pillar string `json:"pillar,omitempty"`

	// Unit is the step key or other unit name, if applicable.
	Unit string `json:"unit,omitempty"`

	// Kind is the unit granularity, if applicable.
	Kind UnitKind `json:"kind,omitempty"`

	// Outcome is set on step.finished and failure events.
	Outcome *Outcome `json:"outcome,omitempty"`

	// Decision is set on decision.made events.
	Decision Decision `json:"decision,omitempty"`

	// Status is the final status on run.finished and pillar.finished events.
	Status string `json:"status,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the severity (info, warning, error).
	Level string `json:"level"`

	// Details contains additional event-specific data.
	Details map[string]interface{} `json:"details,omitempty"`
}

// emitter stamps events with run context before handing them to the sink.
type emitter struct {
	sink EventSink
	run  *Run
}

func (e emitter) emit(ctx context.Context, event Event) {
	if e.sink == nil {
		return
	}
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()
	if e.run != nil {
		event.RunID = e.run.ID
		event.Profile = e.run.Profile
		event.Phase = e.run.Phase
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}
	e.sink.Publish(ctx, &event)
}
