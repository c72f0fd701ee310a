// Package ui renders task lists for the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kmorehouse/taskmirror/internal/task"
	"github.com/muesli/termenv"
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleOverdue = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleToday   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDone    = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	styleMuted   = lipgloss.NewStyle().Faint(true)
	stylePass    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleAccent  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// colorEnabled is resolved once from the terminal's color profile.
var colorEnabled = termenv.DefaultOutput().ColorProfile() != termenv.Ascii

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return render(stylePass, s) }

// RenderAccent styles an informational marker.
func RenderAccent(s string) string { return render(styleAccent, s) }

// RenderHeader styles a section header.
func RenderHeader(s string) string { return render(styleHeader, s) }

// RenderTaskLine formats one task as a single list line.
func RenderTaskLine(t *task.Task) string {
	var b strings.Builder

	mark := "[ ]"
	if t.Completed {
		mark = "[x]"
	}
	b.WriteString(mark)
	b.WriteByte(' ')
	b.WriteString(shortID(t.ID))
	b.WriteByte(' ')

	desc := t.Description
	switch {
	case t.Completed || t.Deleted:
		desc = render(styleDone, desc)
	case isOverdue(t):
		desc = render(styleOverdue, desc)
	case isDueToday(t):
		desc = render(styleToday, desc)
	}
	b.WriteString(desc)

	if t.DueAt != nil {
		b.WriteString(render(styleMuted, fmt.Sprintf("  due %s", t.DueAt.Local().Format("Jan 2 15:04"))))
	}
	if t.Priority != task.PriorityNone {
		b.WriteString(render(styleMuted, fmt.Sprintf("  [%s]", t.Priority)))
	}
	if t.Source.IsAI() {
		b.WriteString(render(styleMuted, fmt.Sprintf("  (%s)", t.Source)))
	}

	return b.String()
}

// RenderList formats a titled section of tasks, or nothing when empty.
func RenderList(title string, tasks []*task.Task) string {
	if len(tasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(RenderHeader(title))
	b.WriteByte('\n')
	for _, t := range tasks {
		b.WriteString("  ")
		b.WriteString(RenderTaskLine(t))
		b.WriteByte('\n')
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func isOverdue(t *task.Task) bool {
	if t.DueAt == nil {
		return false
	}
	y, m, d := time.Now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return t.DueAt.Before(today)
}

func isDueToday(t *task.Task) bool {
	if t.DueAt == nil {
		return false
	}
	now := time.Now()
	due := t.DueAt.Local()
	return due.Year() == now.Year() && due.YearDay() == now.YearDay()
}
