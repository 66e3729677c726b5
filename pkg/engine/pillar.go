package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/mythos-linux/mythos/pkg/engine"

// PillarExecutor runs the ordered steps of one pillar, consulting the failure
// policy after every failed step.
type PillarExecutor struct {
	// Sink receives step and decision events. May be nil.
	Sink EventSink

	// Logger is used for debug logging. Nil disables logging.
	Logger *zerolog.Logger

	// StepTimeout bounds each step when positive.
	StepTimeout time.Duration

	// Profile is reported to the policy in every Failure.
	Profile string

	run *Run
}

// Run executes the pillar's steps in order.
//
// A failed step is followed by a policy decision: Abort stops immediately and
// the result is PillarStatusAborted with the outcomes recorded so far;
// Continue moves on to the next step. A pillar with no steps completes with
// no outcomes. Cancellation of ctx is observed between steps and aborts the
// pillar.
func (e *PillarExecutor) Run(ctx context.Context, pillar Pillar, runner StepRunner, policy FailurePolicy) PillarResult {
	result := PillarResult{
		Name:     pillar.Name,
		Status:   PillarStatusCompleted,
		Outcomes: []OutcomeRecord{},
	}
	em := emitter{sink: e.Sink, run: e.run}

	for _, step := range pillar.Steps {
		if ctx.Err() != nil {
			result.Status = PillarStatusAborted
			return result
		}

		em.emit(ctx, Event{
			Type:    EventTypeStepStarted,
			Pillar:  pillar.Name,
			Unit:    step.Key(),
			Kind:    UnitStep,
			Message: step.Label(),
		})

		outcome := e.runStep(ctx, runner, step)
		record := OutcomeRecord{
			Unit:       step.Key(),
			Kind:       UnitStep,
			Pillar:     pillar.Name,
			Outcome:    outcome,
			RecordedAt: time.Now(),
		}

		level := EventLevelInfo
		if outcome.Failed() {
			level = EventLevelError
		}
		em.emit(ctx, Event{
			Type:    EventTypeStepFinished,
			Pillar:  pillar.Name,
			Unit:    step.Key(),
			Kind:    UnitStep,
			Outcome: &outcome,
			Status:  string(outcome.Status),
			Message: step.Label(),
			Level:   level,
		})

		if !outcome.Failed() {
			result.Outcomes = append(result.Outcomes, record)
			continue
		}

		record.Decision = decide(ctx, policy, Failure{
			Unit:       step.Key(),
			Kind:       UnitStep,
			Pillar:     pillar.Name,
			Diagnostic: outcome.Diagnostic,
			Profile:    e.Profile,
		})
		result.Outcomes = append(result.Outcomes, record)
		em.emit(ctx, Event{
			Type:     EventTypeDecisionMade,
			Pillar:   pillar.Name,
			Unit:     step.Key(),
			Kind:     UnitStep,
			Decision: record.Decision,
			Message:  fmt.Sprintf("%s after failed step %s", record.Decision, step.Key()),
			Level:    EventLevelWarning,
		})

		if record.Decision == DecisionAbort {
			result.Status = PillarStatusAborted
			return result
		}
	}

	return result
}

// runStep invokes the runner with the step timeout applied and never panics.
func (e *PillarExecutor) runStep(ctx context.Context, runner StepRunner, step Step) (outcome Outcome) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "step "+step.Key())
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.pillar", step.Pillar),
	)
	defer span.End()

	if e.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(fmt.Sprintf("step runner panicked: %v", r))
		}
		if outcome.Duration == 0 {
			outcome.Duration = time.Since(started)
		}
		if outcome.Failed() {
			span.SetStatus(codes.Error, outcome.Diagnostic)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}()

	if runner == nil {
		return Failed("no step runner configured")
	}

	outcome = runner.Run(ctx, step)
	if outcome.Status == "" {
		outcome.Status = OutcomeFailure
	}
	if outcome.Failed() && ctx.Err() == context.DeadlineExceeded && e.StepTimeout > 0 {
		outcome.Diagnostic = joinDiagnostic(fmt.Sprintf("step timed out after %s", e.StepTimeout), outcome.Diagnostic)
	}

	if e.Logger != nil {
		e.Logger.Debug().
			Str("step", step.Key()).
			Str("status", string(outcome.Status)).
			Dur("duration", time.Since(started)).
			Msg("step finished")
	}
	return outcome
}

func joinDiagnostic(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + ": " + tail
}
