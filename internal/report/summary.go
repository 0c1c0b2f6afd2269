package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// FileSummary is the line totals of one file.
type FileSummary struct {
	Path    string
	Lines   int
	Covered int
}

// Percent returns covered lines as a percentage of all lines.
func (s FileSummary) Percent() float64 {
	if s.Lines == 0 {
		return 0
	}
	return float64(s.Covered) * 100 / float64(s.Lines)
}

// Summary is the line totals of a report.
type Summary struct {
	Files []FileSummary
	Total FileSummary
}

// Summarize counts lines per file.
func Summarize(r *Report) Summary {
	s := Summary{Total: FileSummary{Path: "total"}}
	for _, f := range r.Files {
		fs := FileSummary{Path: f.Path, Lines: len(f.Lines)}
		for _, l := range f.Lines {
			if l.Covered {
				fs.Covered++
			}
		}
		s.Files = append(s.Files, fs)
		s.Total.Lines += fs.Lines
		s.Total.Covered += fs.Covered
	}
	return s
}

var (
	summaryTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	summaryHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	summaryCell   = lipgloss.NewStyle().Padding(0, 1)
	summaryMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderSummary renders s as a table with a total row.
func RenderSummary(s Summary) string {
	headers := []string{"File", "Lines", "Covered", "%"}
	cells := func(f FileSummary) []string {
		return []string{
			f.Path,
			fmt.Sprint(f.Lines),
			fmt.Sprint(f.Covered),
			fmt.Sprintf("%.1f", f.Percent()),
		}
	}
	rows := make([][]string, 0, len(s.Files)+1)
	for _, f := range s.Files {
		rows = append(rows, cells(f))
	}
	rows = append(rows, cells(s.Total))

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	// Width includes padding.
	total := len(headers) - 1
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}

	var sb strings.Builder
	sb.WriteString(summaryTitle.Render("Coverage"))
	sb.WriteString("\n")

	writeRow := func(style lipgloss.Style, cells []string) {
		for i, cell := range cells {
			st := style.Width(widths[i])
			if i > 0 {
				st = st.Align(lipgloss.Right)
			}
			sb.WriteString(st.Render(cell))
			if i < len(cells)-1 {
				sb.WriteString(summaryMuted.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	divider := summaryMuted.Render(strings.Repeat("-", total)) + "\n"

	writeRow(summaryHeader, headers)
	sb.WriteString(divider)
	for i, row := range rows {
		if i == len(rows)-1 {
			sb.WriteString(divider)
		}
		writeRow(summaryCell, row)
	}

	return sb.String()
}
