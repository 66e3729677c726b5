package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Abort reasons recorded on a Run.
const (
	AbortReasonCancelled = "cancelled"
	AbortReasonBootstrap = "bootstrap failed"
)

// AdhocProfile is the profile name of configurations synthesized from flags.
const AdhocProfile = "adhoc"

// ProvenanceFlags marks a key supplied on the command line.
const ProvenanceFlags = "flags"

// Options configures a Controller.
type Options struct {
	// Store loads profiles and traits. Only needed by Resolve and Provision.
	Store ConfigStore

	// Registry resolves the bootstrap step and pillar steps.
	Registry StepRegistry

	// Runner executes steps.
	Runner StepRunner

	// Policy decides whether to continue after failures. Nil aborts on every failure.
	Policy FailurePolicy

	// Sink receives structured events. May be nil.
	Sink EventSink

	// Logger is used for operational logging. Nil disables logging.
	Logger *zerolog.Logger

	// StepTimeout bounds each step when positive.
	StepTimeout time.Duration
}

// Controller is the orchestration state machine. It runs the optional
// bootstrap phase and then every declared pillar, strictly in sequence.
type Controller struct {
	opts   Options
	logger zerolog.Logger
}

// NewController creates a controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Registry == nil {
		return nil, NewFatalError("step registry is required", nil).WithCode(ErrCodeValidation)
	}
	if opts.Runner == nil {
		return nil, NewFatalError("step runner is required", nil).WithCode(ErrCodeValidation)
	}
	if opts.Policy == nil {
		opts.Policy = AlwaysAbort
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "controller").Logger()
	}

	return &Controller{opts: opts, logger: logger}, nil
}

// Resolve loads a profile and its traits and merges them.
//
// A missing profile fails immediately with ConfigNotFound. A missing trait is
// reported as a trait.missing event and a warning on the returned
// configuration; it contributes nothing to the merge.
func (c *Controller) Resolve(ctx context.Context, profileName string) (*EffectiveConfig, error) {
	if c.opts.Store == nil {
		return nil, NewFatalError("config store is required to resolve profiles", nil).WithCode(ErrCodeValidation)
	}

	profile, err := c.opts.Store.LoadProfile(ctx, profileName)
	if err != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, NewFatalError("failed to load profile", err).WithUnit(profileName)
	}

	em := emitter{sink: c.opts.Sink}
	traits := make(map[string]*Trait, len(profile.Traits))
	var warnings []string

	for _, name := range profile.Traits {
		trait, err := c.opts.Store.LoadTrait(ctx, name)
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			msg := fmt.Sprintf("trait %q not loaded: %v", name, err)
			warnings = append(warnings, msg)
			c.logger.Warn().Str("profile", profile.Name).Str("trait", name).Err(err).Msg("trait missing")
			em.emit(ctx, Event{
				Type:    EventTypeTraitMissing,
				Profile: profile.Name,
				Unit:    name,
				Message: msg,
				Level:   EventLevelWarning,
			})
			continue
		}
		traits[name] = trait
	}

	cfg := Merge(profile, traits)
	cfg.Warnings = warnings
	return cfg, nil
}

// Plan resolves every declared pillar to its ordered steps without running
// anything. Registry problems are reported on the plan, not returned.
func (c *Controller) Plan(ctx context.Context, cfg *EffectiveConfig) (*Plan, error) {
	if cfg == nil {
		return nil, NewFatalError("effective configuration is nil", nil).WithCode(ErrCodeValidation)
	}

	plan := &Plan{
		Profile:    cfg.Profile,
		Pillars:    []PlanPillar{},
		Provenance: cfg.Provenance,
		Warnings:   cfg.Warnings,
	}

	if cfg.BootstrapEnabled() {
		step, err := c.opts.Registry.Bootstrap()
		if err != nil {
			plan.BootstrapError = err.Error()
		} else {
			plan.Bootstrap = &step
		}
	}

	for _, spec := range cfg.PillarSpecs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pp := PlanPillar{Name: spec.Name, Explicit: spec.HasExplicitSteps(), Steps: []Step{}}
		steps, err := c.stepsFor(spec)
		if err != nil {
			pp.Missing = IsPillarNotFound(err)
			pp.Error = err.Error()
		} else {
			pp.Steps = steps
		}
		plan.Pillars = append(plan.Pillars, pp)
	}

	return plan, nil
}

// Provision resolves the named profile and executes it.
// Only configuration errors are returned; execution failures are in the Run.
func (c *Controller) Provision(ctx context.Context, profileName string) (*Run, error) {
	cfg, err := c.Resolve(ctx, profileName)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, cfg), nil
}

// Execute runs the state machine for an effective configuration and always
// returns a terminal Run.
func (c *Controller) Execute(ctx context.Context, cfg *EffectiveConfig) *Run {
	if cfg == nil {
		cfg = &EffectiveConfig{}
	}

	run := &Run{
		ID:        uuid.New().String(),
		Profile:   cfg.Profile,
		Phase:     PhaseNotStarted,
		Status:    RunStatusPending,
		Outcomes:  []OutcomeRecord{},
		Pillars:   []PillarResult{},
		Warnings:  cfg.Warnings,
		StartedAt: time.Now(),
	}
	em := emitter{sink: c.opts.Sink, run: run}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "provision",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("run.profile", run.Profile),
		))
	defer span.End()

	logger := c.logger.With().Str("run_id", run.ID).Str("profile", run.Profile).Logger()
	logger.Info().Int("pillars", len(cfg.PillarSpecs())).Bool("bootstrap", cfg.BootstrapEnabled()).Msg("run started")

	em.emit(ctx, Event{
		Type:    EventTypeRunStarted,
		Message: fmt.Sprintf("provisioning %s", run.Profile),
		Details: map[string]interface{}{
			"bootstrap": cfg.BootstrapEnabled(),
			"pillars":   cfg.PillarSpecs().Names(),
		},
	})

	if cfg.BootstrapEnabled() {
		c.transition(ctx, run, PhaseBootstrapping, "")
		if !c.bootstrap(ctx, run) {
			reason := AbortReasonBootstrap
			if ctx.Err() != nil {
				reason = AbortReasonCancelled
			}
			return c.finish(ctx, run, span, logger, reason)
		}
	}

	for _, spec := range cfg.PillarSpecs() {
		if ctx.Err() != nil {
			return c.finish(ctx, run, span, logger, AbortReasonCancelled)
		}

		c.transition(ctx, run, PhaseRunningPillar, spec.Name)
		if reason, stop := c.runPillar(ctx, run, spec); stop {
			return c.finish(ctx, run, span, logger, reason)
		}
	}

	return c.finish(ctx, run, span, logger, "")
}

// bootstrap runs the bootstrap step through the failure policy and reports
// whether the run may proceed.
func (c *Controller) bootstrap(ctx context.Context, run *Run) bool {
	em := emitter{sink: c.opts.Sink, run: run}

	var outcome Outcome
	step, err := c.opts.Registry.Bootstrap()
	if err != nil {
		outcome = Failed(err.Error())
	} else {
		em.emit(ctx, Event{
			Type:    EventTypeStepStarted,
			Unit:    string(UnitBootstrap),
			Kind:    UnitBootstrap,
			Message: step.Label(),
		})
		exec := c.executor(run)
		outcome = exec.runStep(ctx, c.opts.Runner, step)
	}

	record := OutcomeRecord{
		Unit:       string(UnitBootstrap),
		Kind:       UnitBootstrap,
		Outcome:    outcome,
		RecordedAt: time.Now(),
	}
	level := EventLevelInfo
	if outcome.Failed() {
		level = EventLevelError
	}
	em.emit(ctx, Event{
		Type:    EventTypeStepFinished,
		Unit:    string(UnitBootstrap),
		Kind:    UnitBootstrap,
		Outcome: &outcome,
		Status:  string(outcome.Status),
		Message: "bootstrap",
		Level:   level,
	})

	if !outcome.Failed() {
		run.Outcomes = append(run.Outcomes, record)
		return true
	}

	record.Decision = c.decide(ctx, run, Failure{
		Unit:       string(UnitBootstrap),
		Kind:       UnitBootstrap,
		Diagnostic: outcome.Diagnostic,
		Profile:    run.Profile,
	})
	run.Outcomes = append(run.Outcomes, record)
	return record.Decision == DecisionContinue
}

// runPillar resolves and executes one pillar. It returns the abort reason
// and true when the run must stop.
func (c *Controller) runPillar(ctx context.Context, run *Run, spec PillarSpec) (string, bool) {
	em := emitter{sink: c.opts.Sink, run: run}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pillar "+spec.Name,
		trace.WithAttributes(attribute.String("pillar.name", spec.Name)))
	defer span.End()

	steps, err := c.stepsFor(spec)
	if err != nil {
		status := PillarStatusAborted
		eventType := EventTypePillarFinished
		if IsPillarNotFound(err) {
			status = PillarStatusMissing
			eventType = EventTypePillarMissing
		}
		span.SetStatus(codes.Error, err.Error())

		outcome := Failed(err.Error())
		record := OutcomeRecord{
			Unit:       spec.Name,
			Kind:       UnitPillar,
			Pillar:     spec.Name,
			Outcome:    outcome,
			RecordedAt: time.Now(),
		}
		em.emit(ctx, Event{
			Type:    eventType,
			Pillar:  spec.Name,
			Unit:    spec.Name,
			Kind:    UnitPillar,
			Outcome: &outcome,
			Status:  string(status),
			Message: err.Error(),
			Level:   EventLevelError,
		})

		record.Decision = c.decide(ctx, run, Failure{
			Unit:       spec.Name,
			Kind:       UnitPillar,
			Pillar:     spec.Name,
			Diagnostic: err.Error(),
			Profile:    run.Profile,
		})
		run.Outcomes = append(run.Outcomes, record)
		run.Pillars = append(run.Pillars, PillarResult{Name: spec.Name, Status: status, Outcomes: []OutcomeRecord{}})

		if record.Decision == DecisionAbort {
			return c.abortReason(ctx, fmt.Sprintf("pillar %s: %v", spec.Name, err)), true
		}
		return "", false
	}

	em.emit(ctx, Event{
		Type:    EventTypePillarStarted,
		Pillar:  spec.Name,
		Unit:    spec.Name,
		Kind:    UnitPillar,
		Message: fmt.Sprintf("%d steps", len(steps)),
		Details: map[string]interface{}{"explicit": spec.HasExplicitSteps()},
	})

	exec := c.executor(run)
	result := exec.Run(ctx, Pillar{Name: spec.Name, Steps: steps}, c.opts.Runner, c.opts.Policy)
	run.Outcomes = append(run.Outcomes, result.Outcomes...)
	run.Pillars = append(run.Pillars, result)

	level := EventLevelInfo
	if result.Status != PillarStatusCompleted {
		level = EventLevelWarning
		span.SetStatus(codes.Error, "pillar aborted")
	}
	em.emit(ctx, Event{
		Type:    EventTypePillarFinished,
		Pillar:  spec.Name,
		Unit:    spec.Name,
		Kind:    UnitPillar,
		Status:  string(result.Status),
		Message: fmt.Sprintf("%d of %d steps failed", result.Failures(), len(result.Outcomes)),
		Level:   level,
	})

	if result.Status == PillarStatusCompleted {
		return "", false
	}
	if ctx.Err() != nil {
		return AbortReasonCancelled, true
	}

	decision := c.decide(ctx, run, Failure{
		Unit:       spec.Name,
		Kind:       UnitPillar,
		Pillar:     spec.Name,
		Diagnostic: fmt.Sprintf("pillar %s aborted after %d failed steps", spec.Name, result.Failures()),
		Profile:    run.Profile,
	})
	run.Outcomes = append(run.Outcomes, OutcomeRecord{
		Unit:       spec.Name,
		Kind:       UnitPillar,
		Pillar:     spec.Name,
		Outcome:    Failed("pillar aborted"),
		Decision:   decision,
		RecordedAt: time.Now(),
	})
	if decision == DecisionAbort {
		return c.abortReason(ctx, fmt.Sprintf("pillar %s aborted", spec.Name)), true
	}
	return "", false
}

// stepsFor returns explicit steps in declared order, or every known step
// sorted by the registry.
func (c *Controller) stepsFor(spec PillarSpec) ([]Step, error) {
	if spec.HasExplicitSteps() {
		return c.opts.Registry.Resolve(spec.Name, spec.Steps)
	}
	return c.opts.Registry.Steps(spec.Name)
}

func (c *Controller) executor(run *Run) *PillarExecutor {
	return &PillarExecutor{
		Sink:        c.opts.Sink,
		Logger:      &c.logger,
		StepTimeout: c.opts.StepTimeout,
		Profile:     run.Profile,
		run:         run,
	}
}

// decide consults the policy and emits the decision.
func (c *Controller) decide(ctx context.Context, run *Run, failure Failure) Decision {
	d := decide(ctx, c.opts.Policy, failure)
	emitter{sink: c.opts.Sink, run: run}.emit(ctx, Event{
		Type:     EventTypeDecisionMade,
		Pillar:   failure.Pillar,
		Unit:     failure.Unit,
		Kind:     failure.Kind,
		Decision: d,
		Message:  fmt.Sprintf("%s after failed %s %s", d, failure.Kind, failure.Unit),
		Level:    EventLevelWarning,
	})
	return d
}

func (c *Controller) abortReason(ctx context.Context, reason string) string {
	if ctx.Err() != nil {
		return AbortReasonCancelled
	}
	return reason
}

// transition moves the run to a new phase and emits phase.changed.
func (c *Controller) transition(ctx context.Context, run *Run, to Phase, pillar string) {
	if !canTransition(run.Phase, to) {
		c.logger.Error().Str("from", string(run.Phase)).Str("to", string(to)).Msg("invalid phase transition")
		return
	}
	from := run.Phase
	run.Phase = to
	run.Pillar = pillar

	msg := string(to)
	if pillar != "" {
		msg = fmt.Sprintf("%s(%s)", to, pillar)
	}
	emitter{sink: c.opts.Sink, run: run}.emit(ctx, Event{
		Type:    EventTypePhaseChanged,
		Pillar:  pillar,
		Message: msg,
		Details: map[string]interface{}{"from": string(from)},
	})
}

// finish moves the run to its terminal phase. An empty reason means completed.
func (c *Controller) finish(ctx context.Context, run *Run, span trace.Span, logger zerolog.Logger, reason string) *Run {
	if reason == "" {
		c.transition(ctx, run, PhaseCompleted, "")
		run.Status = RunStatusCompleted
	} else {
		c.transition(ctx, run, PhaseAborted, "")
		run.Status = RunStatusAborted
		run.AbortReason = reason
	}
	completedAt := time.Now()
	run.CompletedAt = &completedAt

	summary := run.Summary()
	span.SetAttributes(
		attribute.String("run.status", string(run.Status)),
		attribute.Int("run.failed", summary.Failed),
	)
	level := EventLevelInfo
	if run.Status == RunStatusAborted {
		level = EventLevelWarning
		span.SetStatus(codes.Error, reason)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	logger.Info().
		Str("status", string(run.Status)).
		Str("reason", reason).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("duration", run.Duration()).
		Msg("run finished")

	// Use a context that survives cancellation so the final event is delivered.
	emitter{sink: c.opts.Sink, run: run}.emit(context.WithoutCancel(ctx), Event{
		Type:    EventTypeRunFinished,
		Status:  string(run.Status),
		Message: finishMessage(run),
		Level:   level,
		Details: map[string]interface{}{
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"pillars":   summary.Pillars,
			"duration":  run.Duration().String(),
		},
	})
	return run
}

func finishMessage(run *Run) string {
	if run.Status == RunStatusAborted {
		return "aborted: " + run.AbortReason
	}
	return "completed"
}

// AdhocConfig synthesizes a configuration from explicit pillar names, with no
// traits. Duplicate pillar names are dropped, keeping the first.
func AdhocConfig(bootstrap bool, pillars ...string) *EffectiveConfig {
	b := bootstrap
	list := PillarList{}
	seen := make(map[string]bool, len(pillars))
	for _, p := range pillars {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		list = append(list, PillarSpec{Name: p})
	}
	return &EffectiveConfig{
		Profile:  AdhocProfile,
		Settings: Settings{Bootstrap: &b, Pillars: list},
		Provenance: map[string]string{
			KeyBootstrap: ProvenanceFlags,
			KeyPillars:   ProvenanceFlags,
		},
	}
}
