package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// Environment variables exported to every step.
const (
	EnvStep   = "MYTHOS_STEP"
	EnvPillar = "MYTHOS_PILLAR"
	EnvRoot   = "MYTHOS_ROOT"
)

// waitDelay bounds how long a cancelled script may keep its output open.
const waitDelay = 2 * time.Second

// ScriptConfig configures a ScriptRunner.
type ScriptConfig struct {
	// Shell is the interpreter, "bash" when empty.
	Shell string

	// Root is exported to scripts as MYTHOS_ROOT.
	Root string

	// Env is appended to the inherited environment.
	Env []string

	// Output, when set, receives a live copy of stdout and stderr.
	Output io.Writer
}

// ScriptRunner runs shell script steps locally. It implements
// engine.StepRunner.
type ScriptRunner struct {
	config ScriptConfig
	logger zerolog.Logger
}

// NewScriptRunner creates a script runner.
func NewScriptRunner(cfg ScriptConfig, logger zerolog.Logger) *ScriptRunner {
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	return &ScriptRunner{
		config: cfg,
		logger: logger.With().Str("component", "script-runner").Logger(),
	}
}

// Run executes the step's script with the configured shell. The script runs
// in its own directory. A missing script is a failed outcome.
func (r *ScriptRunner) Run(ctx context.Context, step engine.Step) engine.Outcome {
	if step.Source == "" {
		return engine.Failed(fmt.Sprintf("no script for step %s", step.Key()))
	}
	if info, err := os.Stat(step.Source); err != nil || info.IsDir() {
		return engine.Failed(fmt.Sprintf("script not found: %s", step.Source))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.config.Shell, step.Source)
	cmd.Dir = filepath.Dir(step.Source)
	// Children left behind by a killed script may hold the output pipes.
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), stepEnv(step, r.config.Root)...)
	cmd.Env = append(cmd.Env, r.config.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.config.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.config.Output)
		cmd.Stderr = io.MultiWriter(&stderr, r.config.Output)
	}

	r.logger.Debug().Str("step", step.Key()).Str("script", step.Source).Msg("Running script")

	err := cmd.Run()
	if err == nil {
		return engine.Succeeded()
	}

	outcome := engine.Failed(diagnostic(stdout.Bytes(), stderr.Bytes(), err.Error()))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	} else {
		outcome.ExitCode = -1
	}
	return outcome
}

func stepEnv(step engine.Step, root string) []string {
	env := []string{EnvStep + "=" + step.ID}
	if step.Pillar != "" {
		env = append(env, EnvPillar+"="+step.Pillar)
	}
	if root != "" {
		env = append(env, EnvRoot+"="+root)
	}
	return env
}
