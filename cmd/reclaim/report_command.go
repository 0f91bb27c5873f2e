package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reclaim/internal/queue"
	"reclaim/internal/report"
	"reclaim/internal/workflow"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var showEntries bool
	var maxProblems int

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show the report of a run (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runID := ""
			if len(args) == 1 {
				runID = strings.TrimSpace(args[0])
			}
			if runID == "" {
				err := ctx.withStore(func(store *queue.Store) error {
					runs, err := store.History(cmd.Context(), 1)
					if err != nil {
						return fmt.Errorf("load history: %w", err)
					}
					if len(runs) == 0 {
						return errors.New("no runs recorded")
					}
					runID = runs[0].ID
					return nil
				})
				if err != nil {
					return err
				}
			}

			path := workflow.ReportPath(cfg.Paths.LogDir, runID)
			rep, err := report.ReadJSON(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no report for run %s (expected %s)", runID, path)
				}
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, rep)
			}
			return rep.Render(cmd.OutOrStdout(), report.RenderOptions{Entries: showEntries, MaxProblems: maxProblems})
		},
	}

	cmd.Flags().BoolVar(&showEntries, "entries", false, "List every converted asset")
	cmd.Flags().IntVar(&maxProblems, "max-problems", defaultMaxProblems, "Skipped/failed assets listed (0 = all)")
	return cmd
}
