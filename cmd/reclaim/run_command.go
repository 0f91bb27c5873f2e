package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"reclaim/internal/config"
	"reclaim/internal/logging"
	"reclaim/internal/report"
	"reclaim/internal/workflow"
)

const defaultMaxProblems = 25

func newRunCommand(ctx *commandContext) *cobra.Command {
	var apply bool
	var dryRun bool
	var concurrency int
	var maxAssets int
	var showEntries bool
	var maxProblems int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Convert library assets",
		Long: `Scan the library and convert every matching asset.

Images are re-encoded to JPEG XL and videos to AV1. A converted asset is
uploaded as a new asset, receives the original's metadata, and the original
is moved to the trash.

Runs are dry by default: assets are downloaded and encoded but the library is
never modified. Pass --apply (or set run.dry_run = false) to replace
originals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunOverrides(cmd, cfg, apply, dryRun, concurrency, maxAssets); err != nil {
				return err
			}

			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another reclaim run is in progress (lock %s)", cfg.LockPath())
			}
			defer lock.Unlock()

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			for _, warning := range cfg.Warnings() {
				logging.WarnWithContext(logger, warning, "config_warning",
					logging.String(logging.FieldErrorHint, "fix the environment variable"),
					logging.String(logging.FieldImpact, "the configured default is used instead"),
				)
			}

			mgr, closeStore, err := workflow.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			rep, runErr := mgr.Execute(signalCtx)
			if rep != nil {
				if err := printRunReport(cmd, ctx, cfg, rep, showEntries, maxProblems); err != nil {
					return err
				}
			}
			if runErr != nil && errors.Is(runErr, context.Canceled) && rep != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Run interrupted; finished jobs were recorded")
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Replace originals in the library (disables dry run)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Encode without modifying the library")
	cmd.MarkFlagsMutuallyExclusive("apply", "dry-run")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of assets processed in parallel")
	cmd.Flags().IntVar(&maxAssets, "max-assets", 0, "Stop scanning after this many assets (0 = unlimited)")
	cmd.Flags().BoolVar(&showEntries, "entries", false, "List every converted asset in the report")
	cmd.Flags().IntVar(&maxProblems, "max-problems", defaultMaxProblems, "Skipped/failed assets listed in the report (0 = all)")
	return cmd
}

// applyRunOverrides folds command-line flags into cfg and revalidates it.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config, apply, dryRun bool, concurrency, maxAssets int) error {
	flags := cmd.Flags()
	if flags.Changed("apply") && apply {
		cfg.Run.DryRun = false
	}
	if flags.Changed("dry-run") && dryRun {
		cfg.Run.DryRun = true
	}
	if flags.Changed("concurrency") {
		cfg.Run.Concurrency = concurrency
	}
	if flags.Changed("max-assets") {
		cfg.Run.MaxAssets = maxAssets
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid run options: %w", err)
	}
	return nil
}

func printRunReport(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, rep *report.Report, entries bool, maxProblems int) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, rep)
	}
	out := cmd.OutOrStdout()
	if err := rep.Render(out, report.RenderOptions{Entries: entries, MaxProblems: maxProblems}); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	fmt.Fprintf(out, "\nReport: %s\n", workflow.ReportPath(cfg.Paths.LogDir, rep.RunID))
	if rep.DryRun {
		fmt.Fprintln(out, "Dry run: the library was not modified. Re-run with --apply to replace originals.")
	}
	return nil
}
