package policy

import (
	"context"
	"fmt"
	"io"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// Policy names accepted by New.
const (
	NamePrompt   = "prompt"
	NameContinue = "continue"
	NameAbort    = "abort"
	NameRego     = "rego"
)

// Options selects and configures a failure policy.
type Options struct {
	// Name is prompt, continue, abort or rego. Empty means prompt.
	Name string

	// File is a Rego module for the rego policy. Setting it implies rego.
	File string

	// In and Out are the operator's terminal for the prompt policy.
	In  io.Reader
	Out io.Writer

	// Interactive is false when nobody can answer the prompt.
	Interactive bool

	Logger zerolog.Logger
}

// New builds the failure policy described by opts.
func New(ctx context.Context, opts Options) (engine.FailurePolicy, error) {
	name := opts.Name
	if opts.File != "" {
		if name != "" && name != NameRego {
			return nil, fmt.Errorf("a policy file requires the %s policy, got %s", NameRego, name)
		}
		name = NameRego
	}

	switch name {
	case "", NamePrompt:
		return NewPrompt(opts.In, opts.Out, opts.Interactive, opts.Logger), nil
	case NameContinue:
		return engine.AlwaysContinue, nil
	case NameAbort:
		return engine.AlwaysAbort, nil
	case NameRego:
		var p *Policy
		if opts.File != "" {
			var err error
			p, err = NewLoader(opts.Logger).LoadFile(opts.File)
			if err != nil {
				return nil, err
			}
		}
		return NewRego(ctx, p, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}
