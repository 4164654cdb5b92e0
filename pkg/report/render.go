package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	rejectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0055"))
	mutateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#874BFD")).Padding(0, 1)
)

// Render draws a terminal summary. Accepted Pods are counted but not listed.
func (r *AuditReport) Render() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("fsGroup audit %s", r.ID)) + "\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("rule %s  generated %s", r.Rule, r.GeneratedAt.Format("2006-01-02 15:04:05Z07:00"))) + "\n\n")

	for _, f := range r.Findings {
		line := fmt.Sprintf("%-8s %s/%s", strings.ToUpper(f.Outcome), f.Namespace, f.Name)
		switch f.Outcome {
		case OutcomeReject, OutcomeError:
			s.WriteString(rejectStyle.Render(line+"  "+f.Message) + "\n")
		case OutcomeMutate:
			if f.FSGroup != nil {
				line = fmt.Sprintf("%s  fsGroup -> %d", line, *f.FSGroup)
			}
			s.WriteString(mutateStyle.Render(line) + "\n")
		}
	}

	counts := fmt.Sprintf("total %d  accepted %d  rejected %d  mutated %d  errors %d",
		r.Summary.Total, r.Summary.Accepted, r.Summary.Rejected, r.Summary.Mutated, r.Summary.Errors)
	s.WriteString("\n" + boxStyle.Render(counts))
	return s.String()
}
