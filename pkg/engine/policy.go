package engine

import (
	"context"
)

// PolicyFunc adapts a function to the FailurePolicy interface.
type PolicyFunc func(ctx context.Context, failure Failure) Decision

// ShouldContinue implements FailurePolicy.
func (f PolicyFunc) ShouldContinue(ctx context.Context, failure Failure) Decision {
	return f(ctx, failure)
}

// FixedPolicy always returns the same decision.
type FixedPolicy Decision

// ShouldContinue implements FailurePolicy.
func (p FixedPolicy) ShouldContinue(_ context.Context, _ Failure) Decision {
	return Decision(p)
}

// Non-interactive policies for unattended and test runs.
var (
	AlwaysContinue FailurePolicy = FixedPolicy(DecisionContinue)
	AlwaysAbort    FailurePolicy = FixedPolicy(DecisionAbort)
)

// decide consults the policy and normalizes unknown verdicts to abort.
func decide(ctx context.Context, policy FailurePolicy, failure Failure) Decision {
	if ctx.Err() != nil {
		return DecisionAbort
	}
	if policy == nil {
		return DecisionAbort
	}
	switch d := policy.ShouldContinue(ctx, failure); d {
	case DecisionContinue:
		return DecisionContinue
	default:
		return DecisionAbort
	}
}
