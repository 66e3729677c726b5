package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/mythos-linux/mythos/pkg/steps"
	"github.com/mythos-linux/mythos/pkg/theme"
	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var (
		profile string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a profile would provision",
		Long: `Resolve a profile and its traits without running anything.

The plan shows every merged setting with the source that supplied it and the
steps of each pillar in the order they will run.`,
		Example: `  # Show the plan for the workstation profile
  mythos plan --profile workstation

  # Machine-readable plan
  mythos plan --profile workstation --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != outputText && output != outputJSON {
				return fmt.Errorf("unknown output format %q (want %s or %s)", output, outputText, outputJSON)
			}

			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(ctx)

			controller, err := engine.NewController(engine.Options{
				Store:    a.store,
				Registry: a.registry,
				Runner:   steps.NewDryRunner(a.logger),
				Sink:     a.telemetry.Sink(),
				Logger:   &a.logger,
			})
			if err != nil {
				return err
			}

			cfg, err := controller.Resolve(ctx, profile)
			if err != nil {
				return err
			}
			plan, err := controller.Plan(ctx, cfg)
			if err != nil {
				return err
			}

			if output == outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			r, err := a.renderer(cmd.OutOrStdout(), cfg.ThemeName())
			if err != nil {
				a.logger.Warn().Err(err).Msg("Ignoring profile theme")
				if r, err = a.renderer(cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return r.Print(renderPlan(r, a.settings.Root, cfg, plan))
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "profile to plan")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func renderPlan(r *theme.Renderer, root string, cfg *engine.EffectiveConfig, plan *engine.Plan) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Profile %s", plan.Profile)
	if cfg.Description != "" {
		fmt.Fprintf(&sb, " - %s", cfg.Description)
	}
	sb.WriteString("\n")
	if len(cfg.Traits) > 0 {
		fmt.Fprintf(&sb, "Traits: %s\n", strings.Join(cfg.Traits, ", "))
	}

	settings := [][]string{
		{engine.KeyBootstrap, strconv.FormatBool(cfg.BootstrapEnabled()), sourceOf(cfg, engine.KeyBootstrap)},
		{engine.KeyPillars, strings.Join(cfg.PillarSpecs().Names(), ", "), sourceOf(cfg, engine.KeyPillars)},
		{engine.KeyTheme, cfg.ThemeName(), sourceOf(cfg, engine.KeyTheme)},
	}
	sb.WriteString(r.Table([]string{"SETTING", "VALUE", "SOURCE"}, settings))

	var rows [][]string
	n := 0
	if plan.Bootstrap != nil {
		n++
		rows = append(rows, []string{strconv.Itoa(n), plan.Bootstrap.Key(), relSource(root, plan.Bootstrap.Source)})
	} else if plan.BootstrapError != "" {
		rows = append(rows, []string{"-", string(engine.UnitBootstrap), plan.BootstrapError})
	}
	for _, p := range plan.Pillars {
		if p.Error != "" {
			rows = append(rows, []string{"-", p.Name, p.Error})
			continue
		}
		if len(p.Steps) == 0 {
			rows = append(rows, []string{"-", p.Name, "no steps"})
		}
		for _, step := range p.Steps {
			n++
			rows = append(rows, []string{strconv.Itoa(n), step.Key(), relSource(root, step.Source)})
		}
	}
	if len(rows) == 0 {
		sb.WriteString(r.Muted("Nothing to run.") + "\n")
	} else {
		sb.WriteString(r.Table([]string{"#", "STEP", "SOURCE"}, rows))
	}

	for _, w := range plan.Warnings {
		sb.WriteString("warning: " + w + "\n")
	}
	return sb.String()
}

func sourceOf(cfg *engine.EffectiveConfig, key string) string {
	if source, ok := cfg.Provenance[key]; ok {
		return source
	}
	return "default"
}

// relSource shows step files relative to the repository root.
func relSource(root, source string) string {
	if source == "" {
		return "(missing)"
	}
	if rel, err := filepath.Rel(root, source); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return source
}
