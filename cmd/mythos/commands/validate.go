package commands

import (
	"fmt"
	"io"

	"github.com/mythos-linux/mythos/pkg/config"
	"github.com/mythos-linux/mythos/pkg/policy"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var (
		watch      bool
		policyFile string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate every profile and trait",
		Long: `Load every profile and trait and report all problems at once.

This command checks:
  - document syntax (YAML, TOML, CUE and Starlark)
  - allowed keys and value types
  - pillar and step names
  - references to missing traits (warnings)
  - the Rego failure policy, when one is configured`,
		Example: `  # Validate the repository in the current directory
  mythos validate

  # Re-validate whenever a profile or trait changes
  mythos validate --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(ctx)

			out := cmd.OutOrStdout()
			r, err := a.renderer(out)
			if err != nil {
				return err
			}

			if policyFile == "" {
				policyFile = a.settings.PolicyFile
			}
			policyErr := validatePolicy(cmd, a, policyFile)

			report, err := a.store.Validate(ctx)
			if err != nil {
				return err
			}
			printReport(out, report, r.Success, r.Failure)

			if watch {
				fmt.Fprintln(out, r.Muted("Watching for changes, press Ctrl+C to stop."))
				return a.store.Watch(ctx, func(report *config.Report) {
					printReport(out, report, r.Success, r.Failure)
				})
			}

			if report.HasErrors() {
				return fmt.Errorf("configuration has errors")
			}
			return policyErr
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate when documents change")
	cmd.Flags().StringVar(&policyFile, "policy-file", "", "also compile this Rego failure policy")

	return cmd
}

func validatePolicy(cmd *cobra.Command, a *app, path string) error {
	if path == "" {
		return nil
	}
	p, err := policy.NewLoader(a.logger).LoadFile(path)
	if err == nil {
		_, err = policy.NewRego(cmd.Context(), p, a.logger)
	}
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error policy %s: %v\n", path, err)
		return fmt.Errorf("invalid failure policy: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "policy %s ok\n", path)
	return nil
}

func printReport(out io.Writer, report *config.Report, success, failure func(string) string) {
	for _, p := range report.Problems {
		fmt.Fprintln(out, p.String())
	}
	summary := fmt.Sprintf("%d profiles, %d traits, %d problems", len(report.Profiles), len(report.Traits), len(report.Problems))
	if report.HasErrors() {
		fmt.Fprintln(out, failure(summary))
		return
	}
	fmt.Fprintln(out, success(summary))
}
