package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mythos-linux/mythos/pkg/config"
	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/mythos-linux/mythos/pkg/policy"
	"github.com/mythos-linux/mythos/pkg/steps"
	"github.com/mythos-linux/mythos/pkg/stores"
	"github.com/mythos-linux/mythos/pkg/theme"
	"github.com/mythos-linux/mythos/pkg/transports/ssh"
	"github.com/spf13/cobra"
)

// Output formats for run events.
const (
	outputText = "text"
	outputJSON = "json"
)

type provisionOptions struct {
	profile     string
	bootstrap   bool
	pillars     []string
	gaming      bool
	dev         bool
	aesthetic   bool
	policyName  string
	policyFile  string
	dryRun      bool
	stepTimeout time.Duration
	host        string
	themeName   string
	output      string
}

// adhocPillars returns the pillars selected by flags, shortcut flags first.
func (o *provisionOptions) adhocPillars() []string {
	var names []string
	if o.gaming {
		names = append(names, "gaming")
	}
	if o.dev {
		names = append(names, "developer")
	}
	if o.aesthetic {
		names = append(names, "aesthetic")
	}

	seen := make(map[string]bool)
	var out []string
	for _, name := range append(names, o.pillars...) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (o *provisionOptions) validate() error {
	adhoc := o.bootstrap || len(o.adhocPillars()) > 0
	switch {
	case o.profile != "" && adhoc:
		return fmt.Errorf("--profile cannot be combined with --bootstrap or pillar flags")
	case o.profile == "" && !adhoc:
		return fmt.Errorf("nothing to provision: pass --profile or at least one of --bootstrap, --pillar, --gaming, --dev, --aesthetic")
	}
	if o.output != outputText && o.output != outputJSON {
		return fmt.Errorf("unknown output format %q (want %s or %s)", o.output, outputText, outputJSON)
	}
	if o.stepTimeout < 0 {
		return fmt.Errorf("--step-timeout must not be negative")
	}
	return nil
}

func newProvisionCommand() *cobra.Command {
	opts := &provisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision this machine from a profile or from flags",
		Long: `Run the bootstrap step and the selected pillars.

With --profile the profile and its traits are merged and executed. Without
it the run is built from flags: --bootstrap runs the bootstrap step and each
pillar flag adds a pillar with all of its steps.

When a step fails the failure policy decides what happens next:
  prompt    ask on the terminal (non-interactive sessions abort)
  continue  keep going
  abort     stop the run
  rego      evaluate data.mythos.failure.decision with OPA

The exit code is 0 when the run completed, 2 when it was aborted and 1 on
any other error.`,
		Example: `  # Provision the workstation profile
  mythos provision --profile workstation

  # Bootstrap and install the gaming and developer pillars
  mythos provision --bootstrap --gaming --dev

  # Show what would run without executing anything
  mythos provision --profile workstation --dry-run

  # Provision a remote machine over SSH, never stopping on failures
  mythos provision --profile server --host root@box.lan --policy continue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			return runProvision(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.profile, "profile", "p", "", "profile to provision")
	flags.BoolVar(&opts.bootstrap, "bootstrap", false, "run the bootstrap step")
	flags.StringSliceVar(&opts.pillars, "pillar", nil, "pillar to install (repeatable)")
	flags.BoolVar(&opts.gaming, "gaming", false, "install the gaming pillar")
	flags.BoolVar(&opts.dev, "dev", false, "install the developer pillar")
	flags.BoolVar(&opts.aesthetic, "aesthetic", false, "install the aesthetic pillar")
	flags.StringVar(&opts.policyName, "policy", "", "failure policy: prompt, continue, abort or rego")
	flags.StringVar(&opts.policyFile, "policy-file", "", "Rego module deciding failures (implies --policy rego)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "report steps without running them")
	flags.DurationVar(&opts.stepTimeout, "step-timeout", 0, "limit for each step (0 uses the settings file)")
	flags.StringVar(&opts.host, "host", "", "provision [user@]host[:port] over SSH")
	flags.StringVar(&opts.themeName, "theme", "", "display theme: greek, norse, egyptian or plain")
	flags.StringVarP(&opts.output, "output", "o", outputText, "event output: text or json")

	return cmd
}

func runProvision(cmd *cobra.Command, opts *provisionOptions) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)

	out := cmd.OutOrStdout()
	var textOut *theme.Renderer
	if opts.output == outputJSON {
		a.telemetry.Events.Subscribe(theme.NewJSONRenderer(out).Publish, nil)
	} else {
		textOut, err = a.renderer(out, opts.themeName)
		if err != nil {
			return err
		}
		a.telemetry.Events.Subscribe(textOut.Publish, nil)
	}

	if a.settings.History.Enabled && !opts.dryRun {
		store, err := stores.Open(ctx, a.settings.History.Path)
		if err != nil {
			a.logger.Warn().Err(err).Str("path", a.settings.History.Path).Msg("History disabled for this run")
		} else {
			defer store.Close()
			journal := stores.NewJournal(store, a.logger)
			a.telemetry.Events.Subscribe(journal.Publish, nil)
		}
	}

	var stepOutput io.Writer
	if opts.output == outputText {
		stepOutput = cmd.ErrOrStderr()
	}
	runner, closeRunner, err := buildRunner(ctx, a, opts, stepOutput)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRunner(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to release step runner")
		}
	}()

	failurePolicy, stopWatching, err := buildPolicy(ctx, a, opts, cmd)
	if err != nil {
		return err
	}
	defer stopWatching()

	stepTimeout := opts.stepTimeout
	if stepTimeout == 0 {
		stepTimeout = a.settings.StepTimeout
	}
	controller, err := engine.NewController(engine.Options{
		Store:       a.store,
		Registry:    a.registry,
		Runner:      runner,
		Policy:      failurePolicy,
		Sink:        a.telemetry.Sink(),
		Logger:      &a.logger,
		StepTimeout: stepTimeout,
	})
	if err != nil {
		return err
	}

	var cfg *engine.EffectiveConfig
	if opts.profile != "" {
		cfg, err = controller.Resolve(ctx, opts.profile)
		if err != nil {
			return err
		}
		// The profile's theme applies unless --theme was given.
		if textOut != nil && opts.themeName == "" && cfg.ThemeName() != "" {
			themes, err := theme.NewManager(cfg.ThemeName())
			if err != nil {
				a.logger.Warn().Err(err).Msg("Ignoring profile theme")
			} else {
				textOut.SetTheme(themes)
			}
		}
	} else {
		cfg = engine.AdhocConfig(opts.bootstrap, opts.adhocPillars()...)
	}

	run := controller.Execute(ctx, cfg)

	if textOut != nil {
		if err := textOut.Err(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to write run output")
		}
	}
	if run.Status == engine.RunStatusAborted {
		return &ExitError{Code: CodeAborted, Err: fmt.Errorf("run %s aborted: %s", run.ID, run.AbortReason)}
	}
	return nil
}

// buildRunner picks the step runner: dry-run, SSH or local. The returned
// function releases it.
func buildRunner(ctx context.Context, a *app, opts *provisionOptions, output io.Writer) (engine.StepRunner, func(context.Context) error, error) {
	if opts.dryRun {
		return steps.NewDryRunner(a.logger), func(context.Context) error { return nil }, nil
	}

	host := opts.host
	if host == "" {
		host = a.settings.Remote.Host
	}
	if host != "" {
		client, err := connectRemote(ctx, a.settings.Remote, host)
		if err != nil {
			return nil, nil, err
		}
		remote := steps.NewRemoteRunner(client, steps.RemoteConfig{
			WorkDir: a.settings.Remote.WorkDir,
			Output:  output,
		}, a.logger)
		dispatcher := steps.NewDispatcher().Handle(steps.ExtScript, remote)
		return dispatcher, func(context.Context) error { return client.Close() }, nil
	}

	dispatcher := steps.NewDispatcher().
		Handle(steps.ExtScript, steps.NewScriptRunner(steps.ScriptConfig{Root: a.settings.Root, Output: output}, a.logger)).
		Handle(steps.ExtWasm, steps.NewWasmRunner(steps.WasmConfig{Root: a.settings.Root, Output: output}, a.logger))
	return dispatcher, dispatcher.Close, nil
}

// connectRemote dials target, which overrides the host, user and port of the
// remote settings.
func connectRemote(ctx context.Context, settings config.RemoteConfig, target string) (*ssh.Client, error) {
	user, host, port, err := ssh.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if user == "" {
		user = settings.User
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	sshConfig := ssh.DefaultConfig(host, user)
	if port != 0 {
		sshConfig.Port = port
	} else if settings.Port != 0 {
		sshConfig.Port = settings.Port
	}
	if settings.KeyPath != "" {
		sshConfig.PrivateKeyPath = settings.KeyPath
	} else if os.Getenv("SSH_AUTH_SOCK") != "" {
		sshConfig.AuthMethod = ssh.AuthMethodAgent
	}
	if settings.KnownHosts != "" {
		sshConfig.KnownHostsPath = settings.KnownHosts
	}
	sshConfig.StrictHostKeyChecking = !settings.Insecure
	if settings.ConnectTimeout > 0 {
		sshConfig.ConnectionTimeout = settings.ConnectTimeout
	}

	client, err := ssh.NewClient(sshConfig)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", sshConfig.Address(), err)
	}
	return client, nil
}

// buildPolicy resolves the failure policy from flags, then settings. A Rego
// policy loaded from a file is reloaded when the file changes.
func buildPolicy(ctx context.Context, a *app, opts *provisionOptions, cmd *cobra.Command) (engine.FailurePolicy, func(), error) {
	name, file := opts.policyName, opts.policyFile
	if name == "" && file == "" {
		name = a.settings.Policy
	}
	if file == "" && strings.EqualFold(name, config.PolicyRego) {
		file = a.settings.PolicyFile
	}

	in := cmd.InOrStdin()
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = policy.Interactive(f)
	}

	failurePolicy, err := policy.New(ctx, policy.Options{
		Name:        strings.ToLower(name),
		File:        file,
		In:          in,
		Out:         cmd.ErrOrStderr(),
		Interactive: interactive,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create failure policy: %w", err)
	}

	stop := func() {}
	if rego, ok := failurePolicy.(*policy.Rego); ok && file != "" {
		loader := policy.NewLoader(a.logger)
		if err := rego.WatchFile(ctx, loader); err != nil {
			a.logger.Warn().Err(err).Msg("Policy changes will not be picked up")
		} else {
			stop = func() { _ = loader.StopWatching() }
		}
	}
	return failurePolicy, stop, nil
}
