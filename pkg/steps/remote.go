package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/mythos-linux/mythos/pkg/transports/ssh"
	"github.com/rs/zerolog"
)

// DefaultRemoteWorkDir is where step files are copied on the target.
const DefaultRemoteWorkDir = "/tmp/mythos"

// Remote is the part of ssh.Transport a RemoteRunner needs.
type Remote interface {
	Run(ctx context.Context, cmd string) (*ssh.ExecResult, error)
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error
}

// RemoteConfig configures a RemoteRunner.
type RemoteConfig struct {
	// WorkDir is the remote directory receiving step files.
	WorkDir string

	// Shell is the remote interpreter, "bash" when empty.
	Shell string

	// Env is exported to every remote step as KEY=VALUE pairs.
	Env []string

	// Output, when set, receives the step's stdout and stderr once it exits.
	Output io.Writer
}

// RemoteRunner copies each script to the target and runs it there. It
// implements engine.StepRunner.
type RemoteRunner struct {
	remote Remote
	config RemoteConfig
	logger zerolog.Logger
}

// NewRemoteRunner creates a runner executing steps through remote.
func NewRemoteRunner(remote Remote, cfg RemoteConfig, logger zerolog.Logger) *RemoteRunner {
	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultRemoteWorkDir
	}
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	return &RemoteRunner{
		remote: remote,
		config: cfg,
		logger: logger.With().Str("component", "remote-runner").Logger(),
	}
}

// Run uploads the script to <WorkDir>/<pillar>/<file> and executes it from
// that directory. Transport failures are failed outcomes.
func (r *RemoteRunner) Run(ctx context.Context, step engine.Step) engine.Outcome {
	if step.Source == "" {
		return engine.Failed(fmt.Sprintf("no script for step %s", step.Key()))
	}
	if info, err := os.Stat(step.Source); err != nil || info.IsDir() {
		return engine.Failed(fmt.Sprintf("script not found: %s", step.Source))
	}

	remotePath := r.RemotePath(step)
	if err := r.remote.UploadFile(ctx, step.Source, remotePath, 0755); err != nil {
		return engine.Failed(fmt.Sprintf("failed to upload %s: %v", step.Key(), err))
	}

	cmd := r.command(step, remotePath)
	r.logger.Debug().Str("step", step.Key()).Str("remote_path", remotePath).Msg("Running remote script")

	result, err := r.remote.Run(ctx, cmd)
	if err != nil {
		outcome := engine.Failed(fmt.Sprintf("remote execution failed: %v", err))
		outcome.ExitCode = -1
		return outcome
	}

	if r.config.Output != nil {
		_, _ = r.config.Output.Write(result.Stdout)
		_, _ = r.config.Output.Write(result.Stderr)
	}

	if result.ExitCode == 0 {
		return engine.Succeeded()
	}
	outcome := engine.Failed(diagnostic(result.Stdout, result.Stderr, fmt.Sprintf("exit status %d", result.ExitCode)))
	outcome.ExitCode = result.ExitCode
	return outcome
}

// RemotePath returns where the step's file is placed on the target.
func (r *RemoteRunner) RemotePath(step engine.Step) string {
	group := step.Pillar
	if group == "" {
		group = BootstrapDir
	}
	return path.Join(r.config.WorkDir, group, filepath.Base(step.Source))
}

func (r *RemoteRunner) command(step engine.Step, remotePath string) string {
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(ssh.ShellQuote(path.Dir(remotePath)))
	b.WriteString(" && env")
	env := append(stepEnv(step, r.config.WorkDir), r.config.Env...)
	for _, kv := range env {
		b.WriteString(" ")
		b.WriteString(ssh.ShellQuote(kv))
	}
	b.WriteString(" ")
	b.WriteString(r.config.Shell)
	b.WriteString(" ")
	b.WriteString(ssh.ShellQuote(remotePath))
	return b.String()
}
