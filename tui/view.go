package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	pendingStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	doneStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("33"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the watcher
func (m Model) View() string {
	var b strings.Builder

	title := "appforge"
	if m.runID != "" {
		title += "  run " + m.runID
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	var rows []string
	for _, r := range m.rows {
		marker := "·"
		style := pendingStyle
		switch r.status {
		case "running":
			marker = "▶"
			style = runningStyle
		case "done":
			marker = "✓"
			style = doneStyle
		case "failed":
			marker = "✗"
			style = failedStyle
		}
		line := fmt.Sprintf("%s %-20s", marker, r.stage)
		if r.attempt > 0 {
			line += fmt.Sprintf(" attempt %d", r.attempt)
		}
		if r.detail != "" {
			line += " " + r.detail
		}
		if r.status == "done" && !r.finished.IsZero() && !r.started.IsZero() {
			line += "  " + r.finished.Sub(r.started).Round(time.Second).String()
		}
		rows = append(rows, style.Render(line))
	}
	b.WriteString(sectionStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n\n")

	tail := m.log
	if max := 8; len(tail) > max {
		tail = tail[len(tail)-max:]
	}
	if len(tail) > 0 {
		b.WriteString(sectionStyle.Render(strings.Join(tail, "\n")))
		b.WriteString("\n\n")
	}

	status := "watching"
	switch {
	case m.failed:
		status = failedStyle.Render("failed: " + m.errText)
	case m.done:
		status = doneStyle.Render("completed")
	case m.closeErr != nil:
		status = failedStyle.Render("stream error: " + m.closeErr.Error())
	}
	bar := fmt.Sprintf(" %s | elapsed %s | q: quit ",
		status, time.Since(m.started).Round(time.Second))
	b.WriteString(statusBarStyle.Render(bar))
	b.WriteString("\n")

	return b.String()
}
