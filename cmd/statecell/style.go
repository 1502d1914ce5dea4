package main

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vango-dev/statecell/internal/scenario"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// renderReport styles the text form of a report for a terminal.
func renderReport(r *scenario.Report) string {
	var body []string
	for _, line := range strings.Split(strings.TrimRight(r.Text(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "scenario: "):
			body = append(body, titleStyle.Render(line))
		case line == "result: PASS":
			body = append(body, passStyle.Render("✓ PASS"))
		case line == "result: FAIL":
			body = append(body, failStyle.Render("✗ FAIL"))
		case strings.HasSuffix(line, ":") && !strings.HasPrefix(line, " "):
			body = append(body, dimStyle.Render(line))
		case strings.Contains(line, " error"):
			body = append(body, errStyle.Render(line))
		default:
			body = append(body, line)
		}
	}
	return boxStyle.Render(strings.Join(body, "\n"))
}

func summary(passed, total int) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		passStyle.Render(strconv.Itoa(passed)+" passed"),
		dimStyle.Render(", "),
		failStyle.Render(strconv.Itoa(total-passed)+" failed"),
	)
}
