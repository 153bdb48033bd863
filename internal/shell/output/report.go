package output

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/report"
)

// =============================================================================
// Validation Report Rendering
// =============================================================================

// RenderReport prints the per-check result table followed by the tally
// and verdict line.
func (p *Printer) RenderReport(rep report.Report) {
	p.Header("Validation Report")
	renderResultTable(p.out, rep.Results)
	p.Print("")
	p.Print("checks: %d  passed: %d  failed: %d  warned: %d  success: %.1f%%",
		rep.Total, rep.Passed, rep.Failed, rep.Warned, rep.SuccessRate*100)
	if rep.Healthy() {
		p.Success("verdict: %s", rep.Verdict())
	} else {
		p.Error("verdict: %s", rep.Verdict())
	}
}

func renderResultTable(w io.Writer, results []domain.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{string(r.Kind), r.Check, r.Message})
	}
	table := newTable(w)
	table.Header([]string{"Result", "Check", "Message"})
	table.Bulk(rows)
	table.Render()
}

// RenderRuns prints recorded run history, most recent first.
func (p *Printer) RenderRuns(recs []domain.RunRecord) {
	if len(recs) == 0 {
		p.Print("no recorded runs")
		return
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.StartedAt.UTC().Format("2006-01-02 15:04"),
			r.Host,
			r.ContainerName,
			string(r.DeployType),
			r.Verdict,
			fmt.Sprintf("%d", r.ExitCode),
		})
	}
	table := newTable(p.out)
	table.Header([]string{"Started", "Host", "Container", "Type", "Verdict", "Exit"})
	table.Bulk(rows)
	table.Render()
}

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader: tw.Off,
				},
			},
		}),
	)
}
