// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ui renders run summaries and ledger listings for the terminal.
package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pdiddy/pubmed-extract/internal/extract"
	"github.com/pdiddy/pubmed-extract/internal/ledger"
)

var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#005FAF", Dark: "#5FAFFF"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#5FD75F"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#AF5F00", Dark: "#FFAF5F"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#767676", Dark: "#8A8A8A"}
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = cellStyle.Bold(true).Foreground(ColorAccent)
	borderStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle)
}

// Summary renders the counts of one run.
func Summary(s extract.BatchSummary, output string) string {
	rows := [][]string{
		{"Extracted", strconv.Itoa(s.Extracted)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"API errors", strconv.Itoa(s.APIErrors)},
		{"Parse errors", strconv.Itoa(s.ParseErrors)},
		{"Checkpoints", strconv.Itoa(s.Checkpoints)},
		{"Output", output},
	}
	return newTable().
		Headers("Outcome", "Count").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return labelStyle
			}
			if (row == 2 || row == 3) && rows[row][1] != "0" {
				return cellStyle.Foreground(ColorFail)
			}
			return cellStyle
		}).
		String()
}

// Runs renders ledger runs, most recent first.
func Runs(runs []ledger.RunInfo) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Command,
			r.Template,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			duration(r),
			r.State,
			strconv.Itoa(r.Summary.Extracted),
			strconv.Itoa(r.Summary.Skipped),
			strconv.Itoa(r.Summary.Failed()),
		})
	}
	return newTable().
		Headers("Run", "Command", "Template", "Started", "Took", "State", "OK", "Skip", "Fail").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch col {
			case 5:
				return cellStyle.Foreground(stateColor(rows[row][5]))
			case 8:
				if rows[row][8] != "0" {
					return cellStyle.Foreground(ColorFail)
				}
			}
			return cellStyle
		}).
		String()
}

func stateColor(state string) lipgloss.TerminalColor {
	switch state {
	case ledger.StateCompleted:
		return ColorPass
	case ledger.StateRunning, ledger.StateInterrupted:
		return ColorWarn
	default:
		return ColorFail
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func duration(r ledger.RunInfo) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

// Failed renders a one-line hint for retrying failed records.
func Failed(n int, runID string) string {
	if n == 0 {
		return lipgloss.NewStyle().Foreground(ColorPass).Render("no failed records")
	}
	return lipgloss.NewStyle().Foreground(ColorWarn).Render(
		fmt.Sprintf("%d records failed; retry with: pubmed-extract resume --run %s", n, shortID(runID)))
}
