package policy

import (
	"time"

	"github.com/mythos-linux/mythos/pkg/engine"
)

// PackageName is the Rego package every failure policy must declare.
const PackageName = "mythos.failure"

// DecisionQuery is evaluated for each failure. It must yield "continue" or
// "abort".
const DecisionQuery = "data." + PackageName + ".decision"

// Policy is a Rego module deciding whether a run keeps going after a failure.
type Policy struct {
	// Name identifies the policy, the file name without extension for files
	Name string `json:"name"`

	// Description is taken from the module's leading comment
	Description string `json:"description,omitempty"`

	// Rego is the module source
	Rego string `json:"rego"`

	// Source is the file the policy was loaded from, empty for built-ins
	Source string `json:"source,omitempty"`

	// LoadedAt is when the policy was read
	LoadedAt time.Time `json:"loaded_at"`
}

// Input is the document a policy sees as input.
type Input struct {
	Unit       string `json:"unit"`
	Kind       string `json:"kind"`
	Pillar     string `json:"pillar,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Profile    string `json:"profile,omitempty"`
}

// NewInput converts an engine failure into policy input.
func NewInput(f engine.Failure) Input {
	return Input{
		Unit:       f.Unit,
		Kind:       string(f.Kind),
		Pillar:     f.Pillar,
		Diagnostic: f.Diagnostic,
		Profile:    f.Profile,
	}
}
