package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"reclaim/internal/conversion"
)

// RenderOptions controls the text report.
type RenderOptions struct {
	// Entries adds a per-asset table of every converted asset.
	Entries bool
	// MaxProblems caps the skip/failure listing; zero lists all.
	MaxProblems int
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer, opts RenderOptions) error {
	p := message.NewPrinter(language.English)

	mode := "apply"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "Run %s (%s, %d workers)\n", r.RunID, mode, r.Concurrency)
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(w, "Finished in %s\n", d.Round(time.Second))
	}
	fmt.Fprintln(w)

	t := r.Totals
	summary := [][]string{
		{"Assets", p.Sprintf("%d", t.Total)},
		{"Converted", p.Sprintf("%d", t.Converted)},
		{"Skipped", p.Sprintf("%d", t.Skipped)},
		{"Failed", p.Sprintf("%d", t.Failed)},
		{"Input size", humanize.IBytes(nonNegative(t.InputBytes))},
		{"Output size", humanize.IBytes(nonNegative(t.OutputBytes))},
		{"Saved", savedLabel(p, t)},
	}
	if t.Reconciliation > 0 {
		summary = append(summary, []string{"Needs reconciliation", p.Sprintf("%d", t.Reconciliation)})
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, summary, []text.Align{text.AlignLeft, text.AlignRight}))

	if len(r.Reasons) > 0 {
		rows := make([][]string, 0, len(r.Reasons))
		for _, rc := range r.Reasons {
			rows = append(rows, []string{string(rc.Outcome), string(rc.Reason), p.Sprintf("%d", rc.Count)})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable([]string{"Outcome", "Reason", "Count"}, rows, []text.Align{text.AlignLeft, text.AlignLeft, text.AlignRight}))
	}

	if opts.Entries {
		var rows [][]string
		for _, e := range r.Entries {
			if e.Outcome != conversion.OutcomeConverted {
				continue
			}
			rows = append(rows, []string{
				e.FileName,
				e.SourceFormat + " → " + e.OutputFormat,
				humanize.IBytes(nonNegative(e.InputBytes)),
				humanize.IBytes(nonNegative(e.OutputBytes)),
				percentLabel(p, e.InputBytes, e.OutputBytes),
			})
		}
		if len(rows) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, renderTable(
				[]string{"File", "Format", "Before", "After", "Saved"},
				rows,
				[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight},
			))
		}
	}

	problems := r.Problems()
	if len(problems) == 0 {
		return nil
	}
	shown := problems
	if opts.MaxProblems > 0 && len(shown) > opts.MaxProblems {
		shown = shown[:opts.MaxProblems]
	}
	rows := make([][]string, 0, len(shown))
	for _, e := range shown {
		stage := "-"
		if e.FailedStage != "" {
			stage = e.FailedStage.Label()
		}
		rows = append(rows, []string{e.AssetID, e.FileName, string(e.Outcome), string(e.Reason), stage, truncate(e.Detail, 80)})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Asset", "File", "Outcome", "Reason", "Stage", "Detail"}, rows, nil))
	if len(shown) < len(problems) {
		fmt.Fprintln(w, p.Sprintf("... %d more (see the JSON report)", len(problems)-len(shown)))
	}
	return nil
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	if len(aligns) > 0 {
		configs := make([]table.ColumnConfig, len(aligns))
		for i, a := range aligns {
			configs[i] = table.ColumnConfig{Number: i + 1, Align: a, AlignHeader: text.AlignLeft}
		}
		tw.SetColumnConfigs(configs)
	}
	return tw.Render()
}

func savedLabel(p *message.Printer, t Totals) string {
	saved := t.SavedBytes()
	label := humanize.IBytes(uint64(abs(saved)))
	if saved < 0 {
		label = "-" + label
	}
	return p.Sprintf("%s (%.1f%%)", label, t.SavedPercent())
}

func percentLabel(p *message.Printer, in, out int64) string {
	if in <= 0 {
		return "-"
	}
	return p.Sprintf("%.1f%%", float64(in-out)/float64(in)*100)
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
