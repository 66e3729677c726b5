package engine

import (
	"fmt"
)

// Phase is a state of the orchestration state machine.
type Phase string

const (
	// PhaseNotStarted is the initial phase of every run.
	PhaseNotStarted Phase = "not_started"

	// PhaseBootstrapping indicates the bootstrap step is running.
	PhaseBootstrapping Phase = "bootstrapping"

	// PhaseRunningPillar indicates a pillar is running.
	PhaseRunningPillar Phase = "running_pillar"

	// PhaseCompleted indicates every declared pillar finished without an abort.
	PhaseCompleted Phase = "completed"

	// PhaseAborted indicates the failure policy stopped the run.
	PhaseAborted Phase = "aborted"
)

// IsTerminal returns true if no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// IsRunning returns true while the run is executing a unit.
func (p Phase) IsRunning() bool {
	return p == PhaseBootstrapping || p == PhaseRunningPillar
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	switch p {
	case PhaseNotStarted, PhaseBootstrapping, PhaseRunningPillar,
		PhaseCompleted, PhaseAborted:
		return nil
	default:
		return fmt.Errorf("invalid phase: %s", p)
	}
}

// canTransition reports whether the state machine allows from -> to.
func canTransition(from, to Phase) bool {
	switch from {
	case PhaseNotStarted:
		return to == PhaseBootstrapping || to == PhaseRunningPillar || to == PhaseCompleted || to == PhaseAborted
	case PhaseBootstrapping:
		return to == PhaseRunningPillar || to == PhaseCompleted || to == PhaseAborted
	case PhaseRunningPillar:
		return to == PhaseRunningPillar || to == PhaseCompleted || to == PhaseAborted
	default:
		return false
	}
}

// RunStatus is the final result of a run.
type RunStatus string

const (
	// RunStatusPending indicates the run has not finished yet.
	RunStatusPending RunStatus = "pending"

	// RunStatusCompleted indicates the run reached PhaseCompleted.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusAborted indicates the run reached PhaseAborted.
	RunStatusAborted RunStatus = "aborted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusCompleted, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// PillarStatus is the result of running one pillar.
type PillarStatus string

const (
	// PillarStatusCompleted indicates every step ran (some may have failed).
	PillarStatusCompleted PillarStatus = "completed"

	// PillarStatusAborted indicates the policy stopped the pillar early.
	PillarStatusAborted PillarStatus = "aborted"

	// PillarStatusMissing indicates the pillar is not known to the registry.
	PillarStatusMissing PillarStatus = "missing"
)

// OutcomeStatus is the status reported by a step runner.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// UnitKind is the granularity at which an outcome or failure is reported.
type UnitKind string

const (
	UnitBootstrap UnitKind = "bootstrap"
	UnitStep      UnitKind = "step"
	UnitPillar    UnitKind = "pillar"
)

// Decision is a failure policy verdict.
type Decision string

const (
	// DecisionContinue keeps the run going after a failure.
	DecisionContinue Decision = "continue"

	// DecisionAbort stops the current pillar or the whole run.
	DecisionAbort Decision = "abort"
)

// ParseDecision converts text such as "continue" or "abort" into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionContinue, DecisionAbort:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("invalid decision: %q", s)
	}
}
