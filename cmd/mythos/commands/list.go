package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

func newProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(ctx)

			names, err := a.store.ListProfiles()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return r.Print(r.Muted("No profiles under "+a.store.Root()) + "\n")
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				profile, err := a.store.LoadProfile(ctx, name)
				if err != nil {
					rows = append(rows, []string{name, "", "", "invalid: " + err.Error()})
					continue
				}
				rows = append(rows, []string{
					name,
					strings.Join(profile.Traits, ", "),
					strings.Join(profile.Settings.Pillars.Names(), ", "),
					profile.Description,
				})
			}
			return r.Print(r.Table([]string{"PROFILE", "TRAITS", "PILLARS", "DESCRIPTION"}, rows))
		},
	}
}

func newTraitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "traits",
		Short: "List traits and the settings they provide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(ctx)

			names, err := a.store.ListTraits()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return r.Print(r.Muted("No traits under "+a.store.Root()) + "\n")
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				trait, err := a.store.LoadTrait(ctx, name)
				if err != nil {
					rows = append(rows, []string{name, "invalid: " + err.Error(), ""})
					continue
				}
				rows = append(rows, []string{name, strings.Join(trait.Settings.Keys(), ", "), relSource(a.store.Root(), trait.Source)})
			}
			return r.Print(r.Table([]string{"TRAIT", "SETS", "SOURCE"}, rows))
		},
	}
}
