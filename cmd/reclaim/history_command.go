package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reclaim/internal/queue"
)

type runView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	DryRun      bool       `json:"dry_run"`
	Concurrency int        `json:"concurrency"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Total       int        `json:"total"`
	Converted   int        `json:"converted"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	InputBytes  int64      `json:"input_bytes"`
	OutputBytes int64      `json:"output_bytes"`
	Error       string     `json:"error,omitempty"`
}

func toRunView(r queue.Run) runView {
	return runView{
		ID:          r.ID,
		Status:      string(r.Status),
		DryRun:      r.DryRun,
		Concurrency: r.Concurrency,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Total:       r.Totals.Total,
		Converted:   r.Totals.Converted,
		Skipped:     r.Totals.Skipped,
		Failed:      r.Totals.Failed,
		InputBytes:  r.Totals.InputBytes,
		OutputBytes: r.Totals.OutputBytes,
		Error:       r.ErrorMessage,
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				runs, err := store.History(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("load history: %w", err)
				}

				if ctx.JSONMode() {
					views := make([]runView, 0, len(runs))
					for _, r := range runs {
						views = append(views, toRunView(r))
					}
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						r.ID,
						r.StartedAt.Local().Format("2006-01-02 15:04"),
						runDuration(r),
						string(r.Status),
						runMode(r.DryRun),
						strconv.Itoa(r.Totals.Total),
						strconv.Itoa(r.Totals.Converted),
						strconv.Itoa(r.Totals.Skipped),
						strconv.Itoa(r.Totals.Failed),
						savedBytes(r.Totals.InputBytes, r.Totals.OutputBytes),
					})
				}
				fmt.Fprint(out, tableSpec{
					headers: []string{"Run", "Started", "Took", "Status", "Mode", "Assets", "Converted", "Skipped", "Failed", "Saved"},
					rows:    rows,
					right:   rightAligned(2, 5, 6, 7, 8, 9),
				}.render())
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func runMode(dryRun bool) string {
	if dryRun {
		return "dry run"
	}
	return "apply"
}

func runDuration(r queue.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return formatDuration(r.FinishedAt.Sub(r.StartedAt))
}

// savedBytes renders input minus output; growth is shown with a sign.
func savedBytes(in, out int64) string {
	diff := in - out
	if diff < 0 {
		return "-" + humanize.IBytes(uint64(-diff))
	}
	return humanize.IBytes(uint64(diff))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
