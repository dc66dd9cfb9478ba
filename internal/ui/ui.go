// Package ui renders boards, todo lists, and status lines for the terminal
// client.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/teamboard/teamboard/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Background(ColorBlue).
			Padding(0, 1)

	ProjectStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBlue)

	DoneStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Strikethrough(true)

	HintStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	ConnectedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	DisconnectedStyle = lipgloss.NewStyle().
				Foreground(ColorRed)
)

// Init detects the terminal's color capabilities and degrades lipgloss output
// accordingly. Call once at startup before any rendering.
func Init() {
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

// PriorityStyle returns the color-coded style for a todo priority.
func PriorityStyle(p model.Priority) lipgloss.Style {
	switch p {
	case model.PriorityHigh:
		return lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	case model.PriorityMedium:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	default:
		return lipgloss.NewStyle().Foreground(ColorGray)
	}
}

// ProgressBar renders a fixed-width bar for a 0..100 percentage.
func ProgressBar(percent, width int) string {
	if width <= 0 {
		width = 20
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	style := ConnectedStyle
	if percent < 100 {
		style = lipgloss.NewStyle().Foreground(ColorBlue)
	}
	return fmt.Sprintf("%s %3d%%", style.Render(bar), percent)
}

// RenderProject renders one project line with its progress bar.
func RenderProject(p model.Project) string {
	return fmt.Sprintf("%s  %s", ProjectStyle.Render(p.Name), ProgressBar(p.Progress, 20))
}

// RenderTodo renders one todo line: checkbox, priority tag, text, assignee,
// and due date.
func RenderTodo(t model.Todo) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}

	var b strings.Builder
	b.WriteString(box)
	b.WriteString(" ")
	b.WriteString(PriorityStyle(t.Priority).Render(strings.ToUpper(string(t.Priority))))
	b.WriteString(" ")
	if t.Completed {
		b.WriteString(DoneStyle.Render(t.Text))
	} else {
		b.WriteString(t.Text)
	}
	if t.Assignee != "" {
		b.WriteString(HintStyle.Render(" @" + t.Assignee))
	}
	if t.DueDate != nil {
		b.WriteString(HintStyle.Render(" due " + t.DueDate.String()))
	}
	return b.String()
}

// RenderConnection renders the connection status indicator.
func RenderConnection(connected bool) string {
	if connected {
		return ConnectedStyle.Render("● connected")
	}
	return DisconnectedStyle.Render("○ disconnected")
}

// RenderBoard renders a full project board: title, progress, todos, and a
// per-assignee completion summary.
func RenderBoard(p model.Project, todos []model.Todo, assignees []string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(p.Name))
	b.WriteString("  ")
	b.WriteString(ProgressBar(p.Progress, 20))
	b.WriteString("\n")
	for _, t := range todos {
		b.WriteString("  ")
		b.WriteString(RenderTodo(t))
		b.WriteString("\n")
	}
	if len(todos) == 0 {
		b.WriteString(HintStyle.Render("  no todos yet"))
		b.WriteString("\n")
	}

	stats := model.ProgressByAssignee(todos, assignees)
	for _, s := range stats {
		if s.Total == 0 && s.Assignee == "" {
			continue
		}
		name := s.Assignee
		if name == "" {
			name = "(unassigned)"
		}
		b.WriteString(HintStyle.Render(fmt.Sprintf("  %s: %d/%d (%d%%)", name, s.Completed, s.Total, s.Percent)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderUrgent renders the cross-priority urgent view.
func RenderUrgent(todos []model.Todo) string {
	if len(todos) == 0 {
		return HintStyle.Render("nothing urgent") + "\n"
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Urgent"))
	b.WriteString("\n")
	for _, t := range todos {
		b.WriteString("  ")
		b.WriteString(RenderTodo(t))
		b.WriteString("\n")
	}
	return b.String()
}
