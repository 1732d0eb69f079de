package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for commands typed after "/" and for
// alarm ids typed after "@".
type Suggestions struct {
	items       []SuggestionItem
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	prefix      string // "/" or "@"
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
}

var commandSuggestions = []SuggestionItem{
	{Text: "add", Description: "add HH:MM [sound|notification]"},
	{Text: "rm", Description: "Remove the selected alarm"},
	{Text: "rearm", Description: "Re-activate a fired alarm"},
	{Text: "fire", Description: "Deliver the selected alarm now"},
	{Text: "boot", Description: "Re-register every active alarm"},
	{Text: "refresh", Description: "Reload the alarm list"},
	{Text: "quit", Description: "Leave the alarms tab"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{items: commandSuggestions}
}

// Update updates suggestions based on current input. Commands are offered
// while the first word starts with "/", alarm ids while the word being typed
// starts with "@".
func (s *Suggestions) Update(input string, alarms []SuggestionItem) {
	word := input
	if i := strings.LastIndexByte(input, ' '); i >= 0 {
		word = input[i+1:]
	}
	if word == "" {
		s.hide()
		return
	}

	switch {
	case word[0] == '/' && word == input:
		s.prefix = "/"
		s.items = commandSuggestions
	case word[0] == '@':
		s.prefix = "@"
		s.items = alarms
	default:
		s.hide()
		return
	}
	s.visible = true
	s.filter(strings.ToLower(word[1:]))
}

func (s *Suggestions) hide() {
	s.visible = false
	s.filtered = nil
	s.prefix = ""
}

func (s *Suggestions) filter(query string) {
	if query == "" {
		s.filtered = s.items
		s.selectedIdx = 0
		return
	}

	s.filtered = nil
	for _, item := range s.items {
		if strings.HasPrefix(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
	s.selectedIdx = 0
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.IsVisible() || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// Prefix is the trigger character of the visible list.
func (s *Suggestions) Prefix() string { return s.prefix }

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	pickedStyle := lipgloss.NewStyle().
		Background(primaryColor).
		Foreground(fgColor).
		Bold(true)

	itemStyle := lipgloss.NewStyle().Foreground(fgColor)
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	header := "Commands"
	if s.prefix == "@" {
		header = "Alarms"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	const maxVisible = 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}

		var line string
		if i == s.selectedIdx {
			line = pickedStyle.Render("▶ " + item.Text)
			if item.Description != "" {
				line += " " + pickedStyle.Render(item.Description)
			}
		} else {
			line = itemStyle.Render("  " + item.Text)
			if item.Description != "" {
				line += " " + descStyle.Render(item.Description)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
