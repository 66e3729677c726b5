package engine

import (
	"context"
)

// ConfigStore loads named profiles and traits from persistent storage.
type ConfigStore interface {
	// LoadProfile loads a profile by name.
	// A missing profile returns an error matching ErrConfigNotFound.
	LoadProfile(ctx context.Context, name string) (*Profile, error)

	// LoadTrait loads a trait by name.
	// A missing trait returns an empty trait together with an error matching
	// ErrTraitNotFound; callers treat it as a warning.
	LoadTrait(ctx context.Context, name string) (*Trait, error)
}

// StepRegistry knows which steps exist and how to order them.
type StepRegistry interface {
	// Bootstrap returns the single bootstrap step.
	Bootstrap() (Step, error)

	// Steps returns every known step of a pillar sorted by step ID.
	// An unknown pillar returns an error matching ErrPillarNotFound.
	Steps(pillar string) ([]Step, error)

	// Resolve maps explicit step IDs to steps, preserving the given order.
	// IDs the registry does not know are still returned so the runner can
	// report them as failures.
	Resolve(pillar string, ids []string) ([]Step, error)
}

// StepRunner executes one step and reports its outcome.
// Implementations must not panic on step failure; they return a failed Outcome.
type StepRunner interface {
	Run(ctx context.Context, step Step) Outcome
}

// StepRunnerFunc adapts a function to the StepRunner interface.
type StepRunnerFunc func(ctx context.Context, step Step) Outcome

// Run implements StepRunner.
func (f StepRunnerFunc) Run(ctx context.Context, step Step) Outcome {
	return f(ctx, step)
}

// Failure describes a failed unit handed to a FailurePolicy.
type Failure struct {
	// Unit is the failed step key, pillar name or "bootstrap".
	Unit string `json:"unit"`

	// Kind is the granularity of the failure.
	Kind UnitKind `json:"kind"`

	// Pillar is the pillar the unit belongs to, if any.
	Pillar string `json:"pillar,omitempty"`

	// Diagnostic is the captured diagnostic text.
	Diagnostic string `json:"diagnostic,omitempty"`

	// Profile is the profile being provisioned.
	Profile string `json:"profile,omitempty"`
}

// FailurePolicy decides whether to keep going after a failure.
// The same policy is consulted at bootstrap, step and pillar granularity.
type FailurePolicy interface {
	ShouldContinue(ctx context.Context, failure Failure) Decision
}

// EventSink receives structured events from the engine.
type EventSink interface {
	Publish(ctx context.Context, event *Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event *Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ctx context.Context, event *Event) {
	f(ctx, event)
}
