package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reclaim/internal/queue"
)

type reconcileView struct {
	JobID      string    `json:"job_id"`
	RunID      string    `json:"run_id"`
	AssetID    string    `json:"asset_id"`
	FileName   string    `json:"file_name"`
	Stage      string    `json:"stage"`
	NewAssetID string    `json:"new_asset_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Review assets that need a manual library check",
		Long: `Review assets that need a manual library check.

An asset needs reconciliation when its job stopped after the upload began:
the library may hold both the original and a converted copy, or a copy
without metadata. Such assets are skipped by later runs until resolved.`,
	}

	reconcileCmd.AddCommand(newReconcileListCommand(ctx))
	reconcileCmd.AddCommand(newReconcileResolveCommand(ctx))

	return reconcileCmd
}

func newReconcileListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unresolved assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.PendingReconciliation(cmd.Context())
				if err != nil {
					return fmt.Errorf("load reconciliation list: %w", err)
				}

				if ctx.JSONMode() {
					views := make([]reconcileView, 0, len(jobs))
					for _, j := range jobs {
						views = append(views, reconcileView{
							JobID:      j.ID,
							RunID:      j.RunID,
							AssetID:    j.AssetID,
							FileName:   j.FileName,
							Stage:      j.Stage,
							NewAssetID: j.NewAssetID,
							Error:      j.ErrorMessage,
							UpdatedAt:  j.UpdatedAt,
						})
					}
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No assets need reconciliation")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, j := range jobs {
					newAsset := j.NewAssetID
					if newAsset == "" {
						newAsset = "-"
					}
					rows = append(rows, []string{j.ID, j.AssetID, j.FileName, j.Stage, newAsset, j.UpdatedAt.Local().Format("2006-01-02 15:04")})
				}
				fmt.Fprint(out, tableSpec{
					headers: []string{"Job", "Asset", "File", "Stopped at", "New asset", "Updated"},
					rows:    rows,
				}.render())
				fmt.Fprintln(out, "\nCheck each asset in the library, then run `reclaim reconcile resolve <job>`.")
				return nil
			})
		},
	}
}

func newReconcileResolveCommand(ctx *commandContext) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <job-id>...",
		Short: "Mark assets as checked so later runs process them again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					if err := store.ResolveReconciliation(cmd.Context(), id, note); err != nil {
						if errors.Is(err, queue.ErrJobNotFound) {
							fmt.Fprintf(out, "Job %s not found or already resolved\n", id)
							failed = append(failed, id)
							continue
						}
						return err
					}
					fmt.Fprintf(out, "Job %s resolved\n", id)
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d job(s) could not be resolved", len(failed))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&note, "note", "m", "", "Note stored with the resolution")
	return cmd
}
