package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mythos-linux/mythos/pkg/stores"
	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		runID  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past provisioning runs",
		Long: `List runs recorded in the history database, newest first.

History is kept when enabled in mythos.yaml (history.enabled) or through
MYTHOS_HISTORY. Use --run to show the outcome log of a single run.`,
		Example: `  # Last 10 runs
  mythos history --limit 10

  # Every step outcome of one run
  mythos history --run 3f1c9a52-...`,
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

			store, err := stores.Open(ctx, a.settings.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := a.renderer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if runID != "" {
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				outcomes, err := store.ListOutcomes(ctx, runID)
				if err != nil {
					return err
				}
				if output == outputJSON {
					return enc.Encode(struct {
						*stores.RunRecord
						Outcomes []*stores.OutcomeEntry `json:"outcomes"`
					}{run, outcomes})
				}

				rows := make([][]string, 0, len(outcomes))
				for _, o := range outcomes {
					rows = append(rows, []string{
						strconv.Itoa(o.Seq), o.Unit, o.Status, strconv.Itoa(o.ExitCode),
						o.Duration.Round(time.Millisecond).String(), o.Decision,
					})
				}
				header := fmt.Sprintf("Run %s (%s) %s", run.ID, run.Profile, run.Status)
				if run.Reason != "" {
					header += ": " + run.Reason
				}
				return r.Print(header + "\n" + r.Table([]string{"#", "UNIT", "STATUS", "EXIT", "DURATION", "DECISION"}, rows))
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if output == outputJSON {
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				return r.Print(r.Muted("No runs recorded in "+store.Path()) + "\n")
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				duration := "-"
				if run.FinishedAt != nil {
					duration = run.Duration().Round(time.Second).String()
				}
				rows = append(rows, []string{
					run.ID,
					run.Profile,
					run.Status,
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					duration,
					strconv.Itoa(run.Succeeded),
					strconv.Itoa(run.Failed),
					run.Reason,
				})
			}
			return r.Print(r.Table([]string{"RUN", "PROFILE", "STATUS", "STARTED", "DURATION", "OK", "FAILED", "REASON"}, rows))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "show the outcomes of one run")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")

	return cmd
}
