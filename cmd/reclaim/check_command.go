package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reclaim/internal/immich"
	"reclaim/internal/logging"
	"reclaim/internal/preflight"
)

const (
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipLibrary bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify tools, directories, and the library connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var pinger preflight.Pinger
			if !skipLibrary {
				pinger = immich.NewFromConfig(cfg, logging.NewNop())
			}
			results := preflight.RunAll(cmd.Context(), cfg, pinger)
			failures := preflight.Failures(results)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, map[string]any{
					"results": results,
					"passed":  len(failures) == 0,
				}); err != nil {
					return err
				}
			} else {
				printCheckResults(cmd.OutOrStdout(), results, shouldColorize(cmd.OutOrStdout()))
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failures))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipLibrary, "offline", false, "Skip the library connection test")
	return cmd
}

func printCheckResults(out io.Writer, results []preflight.Result, colorize bool) {
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}
	for _, r := range results {
		label, color := "OK", ansiGreen
		switch {
		case !r.Passed && r.Optional:
			label, color = "WARN", ansiYellow
		case !r.Passed:
			label, color = "FAIL", ansiRed
		}
		label = fmt.Sprintf("%-4s", label)
		if colorize {
			label = color + label + ansiReset
		}
		line := fmt.Sprintf("%s  %-*s", label, width, r.Name)
		if r.Detail != "" {
			line += "  " + r.Detail
		}
		fmt.Fprintln(out, line)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
