package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/timereports/internal/models"
)

var (
	activeStyle   = lipgloss.NewStyle().Foreground(successColor)
	firedStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	soundStyle    = lipgloss.NewStyle().Foreground(warningColor)
	notifyStyle   = lipgloss.NewStyle().Foreground(cyanColor)
	listHeadStyle = lipgloss.NewStyle().Foreground(mutedColor).Bold(true)
)

func formatState(active bool) string {
	if active {
		return activeStyle.Render("● active")
	}
	return firedStyle.Render("○ fired ")
}

func formatStatePlain(active bool) string {
	if active {
		return "● active"
	}
	return "○ fired "
}

func formatKind(k models.Kind, plain bool) string {
	s := fmt.Sprintf("%-12s", k.String())
	if plain {
		return s
	}
	switch k {
	case models.KindSound:
		return soundStyle.Render(s)
	case models.KindNotification:
		return notifyStyle.Render(s)
	default:
		return s
	}
}

// nextLabel describes when an active alarm next goes off relative to now.
func nextLabel(a models.Alarm, now time.Time) string {
	if !a.Active {
		return "rearm to use again"
	}
	next := a.Time.Next(now)
	if next.YearDay() == now.YearDay() && next.Year() == now.Year() {
		return "today " + next.Format("15:04")
	}
	return "tomorrow " + next.Format("15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// renderAlarmList draws the sorted alarm projection with the selected row
// highlighted, scrolling so the selection stays visible.
func renderAlarmList(alarms []models.Alarm, selected int, now time.Time, height int) string {
	if len(alarms) == 0 {
		return "\n  No alarms yet. Type: add 09:00 notification\n"
	}

	lines := []string{listHeadStyle.Render("    TIME   TYPE          STATE     NEXT                ID")}
	for i, a := range alarms {
		if i == selected {
			row := fmt.Sprintf("▶ %s  %s  %s  %-18s  %s",
				a.Time, formatKind(a.Kind, true), formatStatePlain(a.Active), nextLabel(a, now), shortID(a.ID))
			lines = append(lines, selectedStyle.Render(row))
			continue
		}
		row := fmt.Sprintf("  %s  %s  %s  %-18s  %s",
			a.Time, formatKind(a.Kind, false), formatState(a.Active), nextLabel(a, now), shortID(a.ID))
		lines = append(lines, itemStyle.Render(row))
	}

	if height > 1 && len(lines) > height {
		start := 1
		if selected+1 >= height {
			start = selected + 2 - (height - 1)
		}
		end := min(start+height-1, len(lines))
		lines = append(lines[:1], lines[start:end]...)
	}
	return strings.Join(lines, "\n") + "\n"
}
