package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

// Rego decides failures by evaluating a Rego module. It implements
// engine.FailurePolicy.
type Rego struct {
	mu     sync.RWMutex
	policy *Policy
	query  rego.PreparedEvalQuery
	logger zerolog.Logger
}

// NewRego compiles policy. A nil policy selects the built-in one.
func NewRego(ctx context.Context, policy *Policy, logger zerolog.Logger) (*Rego, error) {
	r := &Rego{logger: logger.With().Str("component", "rego-policy").Logger()}
	if policy == nil {
		policy = Builtin()
	}
	if err := r.Load(ctx, policy); err != nil {
		return nil, err
	}
	return r, nil
}

// Load compiles policy and swaps it in. On error the previous policy stays.
func (r *Rego) Load(ctx context.Context, policy *Policy) error {
	if err := checkModule(policy); err != nil {
		return err
	}

	query, err := rego.New(
		rego.Query(DecisionQuery),
		rego.Module(policy.Name+".rego", policy.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare policy %s: %w", policy.Name, err)
	}

	r.mu.Lock()
	r.policy = policy
	r.query = query
	r.mu.Unlock()

	r.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled successfully")
	return nil
}

// Policy returns the active policy.
func (r *Rego) Policy() *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// Decide evaluates the active policy for failure.
func (r *Rego) Decide(ctx context.Context, failure engine.Failure) (engine.Decision, error) {
	r.mu.RLock()
	query, name := r.query, r.policy.Name
	r.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(NewInput(failure)))
	if err != nil {
		return "", fmt.Errorf("policy %s evaluation error: %w", name, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("policy %s does not define a decision for %s", name, failure.Unit)
	}

	value, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("policy %s returned %v, want a string", name, results[0].Expressions[0].Value)
	}
	return engine.ParseDecision(value)
}

// ShouldContinue implements engine.FailurePolicy. Evaluation errors abort.
func (r *Rego) ShouldContinue(ctx context.Context, failure engine.Failure) engine.Decision {
	decision, err := r.Decide(ctx, failure)
	if err != nil {
		r.logger.Error().Err(err).Str("unit", failure.Unit).Msg("Policy evaluation failed, aborting")
		return engine.DecisionAbort
	}
	return decision
}

// WatchFile reloads the active policy when its source file changes.
func (r *Rego) WatchFile(ctx context.Context, loader *Loader) error {
	source := r.Policy().Source
	if source == "" {
		return fmt.Errorf("policy %s has no source file", r.Policy().Name)
	}
	return loader.Watch(ctx, source, func(p *Policy) error {
		return r.Load(ctx, p)
	})
}
