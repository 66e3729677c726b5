package commands

import (
	"github.com/mythos-linux/mythos/pkg/theme"
	"github.com/spf13/cobra"
)

func newThemesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "List display themes and their pillar patrons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(ctx)

			r, err := a.renderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			pillars := theme.Pillars()
			headers := []string{"THEME", "TITLE", "GAMING", "DEVELOPER", "AESTHETIC"}
			rows := [][]string{}
			for _, name := range append(theme.Names(), theme.Plain) {
				m, err := theme.NewManager(name)
				if err != nil {
					return err
				}
				title := "MythOS Provisioner"
				if t := m.Theme(); t != nil {
					title = t.Title
				}
				row := []string{name, title}
				for _, pillar := range pillars {
					p := m.Patron(pillar)
					row = append(row, p.Symbol+" "+p.Name)
				}
				rows = append(rows, row)
			}
			return r.Print(r.Table(headers, rows))
		},
	}
}
