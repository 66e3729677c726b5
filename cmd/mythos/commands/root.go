package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	rootDir    string
	verbose    bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, ver, commit, buildDate string) error {
	buildVersion = ver
	rootCmd := newRootCommand(ver, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mythos",
		Short: "MythOS - themed workstation provisioner",
		Long: `MythOS provisions a machine from profiles and traits.

A profile selects whether the bootstrap step runs and which pillars
(gaming, developer, aesthetic, ...) are installed. Traits supply defaults a
profile can override. Each pillar is a directory of step scripts that run in
order; a failure policy decides whether to keep going after a step fails.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default <root>/mythos.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "repository root holding profiles/, traits/, bootstrap/ and pillars/")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newProfilesCommand())
	rootCmd.AddCommand(newTraitsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newThemesCommand())

	return rootCmd
}
