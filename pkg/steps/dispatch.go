package steps

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// Dispatcher routes each step to a runner chosen by the extension of its
// source file. It implements engine.StepRunner.
type Dispatcher struct {
	runners map[string]engine.StepRunner
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{runners: make(map[string]engine.StepRunner)}
}

// Handle registers runner for sources ending in ext, e.g. ".sh".
func (d *Dispatcher) Handle(ext string, runner engine.StepRunner) *Dispatcher {
	d.runners[ext] = runner
	return d
}

// Run implements engine.StepRunner.
func (d *Dispatcher) Run(ctx context.Context, step engine.Step) engine.Outcome {
	ext := filepath.Ext(step.Source)
	runner, ok := d.runners[ext]
	if !ok {
		if ext == "" {
			return engine.Failed(fmt.Sprintf("no script for step %s", step.Key()))
		}
		return engine.Failed(fmt.Sprintf("no runner for %s steps", ext))
	}
	return runner.Run(ctx, step)
}

// Close closes every registered runner that holds resources.
func (d *Dispatcher) Close(ctx context.Context) error {
	var errs []error
	for _, runner := range d.runners {
		if c, ok := runner.(interface{ Close(context.Context) error }); ok {
			errs = append(errs, c.Close(ctx))
		}
	}
	return errors.Join(errs...)
}

// DryRunner succeeds without executing anything. Plans and --dry-run use it
// to walk the run as the engine would.
type DryRunner struct {
	logger zerolog.Logger
}

// NewDryRunner creates a dry runner.
func NewDryRunner(logger zerolog.Logger) *DryRunner {
	return &DryRunner{logger: logger.With().Str("component", "dry-runner").Logger()}
}

// Run implements engine.StepRunner.
func (r *DryRunner) Run(_ context.Context, step engine.Step) engine.Outcome {
	r.logger.Info().Str("step", step.Key()).Str("source", step.Source).Msg("Would run step")
	return engine.Succeeded()
}
