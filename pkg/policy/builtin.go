package policy

import (
	"time"
)

// BuiltinRego is the failure policy used when no module is configured.
const BuiltinRego = `package mythos.failure

import rego.v1

# Abort when the base system failed, keep going after any other failure.

default decision := "continue"

decision := "abort" if input.kind == "bootstrap"
`

// Builtin returns the built-in failure policy.
func Builtin() *Policy {
	return &Policy{
		Name:        "builtin",
		Description: extractDescription(BuiltinRego),
		Rego:        BuiltinRego,
		LoadedAt:    time.Now(),
	}
}
