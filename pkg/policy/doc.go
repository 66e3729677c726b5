// Package policy decides whether a provisioning run keeps going after a
// failed bootstrap, step or pillar.
//
// Three kinds of engine.FailurePolicy are available:
//
//   - continue and abort give the same answer every time.
//   - Prompt asks "Continue anyway? [y/N]" on the operator's terminal. Only
//     y or yes continues. Without a terminal, or with CI or
//     MYTHOS_NO_INTERACTION set, it aborts.
//   - Rego evaluates data.mythos.failure.decision with Open Policy Agent.
//
// # Rego policies
//
// A module declares package mythos.failure and defines decision as
// "continue" or "abort". The input document is
//
//	{"unit": "gaming/steam", "kind": "step", "pillar": "gaming",
//	 "diagnostic": "...", "profile": "workstation"}
//
// with kind one of bootstrap, step or pillar. The built-in module aborts when
// bootstrap fails and continues otherwise:
//
//	package mythos.failure
//
//	import rego.v1
//
//	default decision := "continue"
//
//	decision := "abort" if input.kind == "bootstrap"
//
// An undefined decision, a value other than continue or abort, or an
// evaluation error all abort.
//
// Usage:
//
//	p, err := policy.New(ctx, policy.Options{Name: "rego", File: "policy.rego"})
package policy
