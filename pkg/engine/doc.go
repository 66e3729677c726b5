// Package engine provides the core types and the orchestration state machine
// of the MythOS provisioner.
//
// # Overview
//
// A provisioning run is driven by a profile. The engine works through a
// fixed sequence:
//
//  1. Resolve - Load the profile and its traits from a ConfigStore and merge them
//  2. Bootstrap - Optionally run the single bootstrap step
//  3. Pillars - Run every declared pillar, in declaration order
//  4. Result - Return a terminal Run with the full outcome log
//
// # Core Domain Types
//
//   - Profile: a named configuration selecting pillars and traits
//   - Trait: a named set of default settings merged under a profile
//   - EffectiveConfig: the merged settings plus provenance for every key
//   - Pillar: a named, ordered group of steps
//   - Step: one external action reported as an Outcome
//   - Run: the ephemeral record of one invocation
//
// # Merge Precedence
//
// The profile's own keys always win. Traits fill only keys that are still
// undefined, in the order the profile lists them, so the first trait to
// define a key wins:
//
//	cfg := engine.Merge(profile, traitsByName)
//	cfg.Provenance["pillars"] // "profile" or "trait:<name>"
//
// # Failure Policy
//
// A single FailurePolicy is consulted at bootstrap, step and pillar
// granularity. AlwaysContinue and AlwaysAbort serve unattended runs and tests;
// interactive and Rego policies live in package policy.
//
// # State Machine
//
//	not_started -> bootstrapping -> running_pillar(p1) -> ... -> completed
//	                    \                   \
//	                     +-------------------+-> aborted
//
// Execution is strictly sequential. Context cancellation is observed between
// units and ends the run aborted with reason "cancelled".
//
// # Error Classification
//
//   - Fatal: missing profile or malformed configuration, returned before execution
//   - Recoverable: failing steps and unknown pillars, recorded and policy-gated
//   - Warning: missing traits, reported as events
//
//	if engine.IsConfigNotFound(err) {
//	    // ask for a valid profile name
//	}
package engine
