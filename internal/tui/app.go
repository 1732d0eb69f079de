// Package tui provides the interactive alarms tab for timereports.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/timereports/internal/controlplane"
	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	alertStyle = lipgloss.NewStyle().
			Background(warningColor).
			Foreground(lipgloss.Color("#111827")).
			Bold(true).
			Padding(0, 2)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

const (
	requestTimeout = 5 * time.Second
	// healthEvery is how many clock ticks pass between health checks.
	healthEvery = 5
)

// App is the alarms tab model.
type App struct {
	client      API
	alarms      []models.Alarm
	selectedIdx int
	input       textinput.Model
	suggestions *Suggestions
	width       int
	height      int
	now         time.Time
	ticks       int
	message     string
	alert       string
	loading     bool

	daemonOnline bool
	capability   string
	degraded     bool

	// lastSeq is the newest event applied. Until primed, the first poll
	// only records the position so old history is not replayed.
	lastSeq uint64
	primed  bool
}

// New creates the alarms tab backed by client.
func New(client API) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: add 09:00 sound | rm | rearm | fire | boot   (/ for commands, @ for alarms)"
	ti.Focus()
	ti.CharLimit = 128
	ti.Width = 80

	return &App{
		client:      client,
		input:       ti,
		suggestions: NewSuggestions(),
		now:         time.Now(),
		width:       80,
		height:      24,
	}
}

// NewFromAddr is New with an HTTP client for the daemon at baseURL.
func NewFromAddr(baseURL string) *App {
	return New(controlplane.NewClient(baseURL))
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchAlarms(),
		a.checkHealth(),
		a.pollEvents(),
		tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.alert != "" {
				a.alert = ""
				return a, nil
			}
			a.input.SetValue("")
			a.suggestions.Update("", nil)
			return a, nil

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
			} else if a.selectedIdx > 0 {
				a.selectedIdx--
			}
			return a, nil

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
			} else if a.selectedIdx < len(a.alarms)-1 {
				a.selectedIdx++
			}
			return a, nil

		case "tab":
			a.acceptSuggestion()
			return a, nil

		case "enter":
			if a.acceptSuggestion() {
				return a, nil
			}
			line := strings.TrimSpace(a.input.Value())
			if line == "" {
				return a, nil
			}
			a.input.SetValue("")
			a.suggestions.Update("", nil)
			return a, a.executeCommand(line)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6

	case tickMsg:
		a.now = time.Time(msg)
		a.ticks++
		cmds = append(cmds, tickCmd(), a.pollEvents())
		if a.ticks%healthEvery == 0 {
			cmds = append(cmds, a.checkHealth())
		}
		return a, tea.Batch(cmds...)

	case alarmsLoadedMsg:
		a.loading = false
		a.alarms = msg.alarms
		if a.selectedIdx >= len(a.alarms) {
			a.selectedIdx = max(0, len(a.alarms)-1)
		}
		return a, nil

	case healthMsg:
		online := msg.health != nil
		if online && !a.daemonOnline {
			// a restarted daemon numbers its events from scratch
			a.primed = false
			a.lastSeq = 0
		}
		a.daemonOnline = online
		if msg.health != nil {
			a.capability = msg.health.Capability
			a.degraded = msg.health.Degraded
			if msg.err != nil {
				a.message = "Error: " + msg.err.Error()
			}
		}
		return a, nil

	case eventsMsg:
		return a, a.applyEvents(msg.events)

	case commandResultMsg:
		a.message = msg.message
		return a, a.fetchAlarms()

	case errMsg:
		a.loading = false
		a.message = "Error: " + describeError(msg.err)
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.suggestions.Update(a.input.Value(), a.alarmSuggestions())

	return a, tea.Batch(cmds...)
}

// applyEvents folds polled daemon events into UI state. Alerts raise the
// banner, failures land in the message bar, and anything that changed the
// alarm set triggers a list refresh.
func (a *App) applyEvents(evs []events.Event) tea.Cmd {
	if len(evs) == 0 {
		a.primed = true
		return nil
	}
	newest := evs[len(evs)-1].Seq
	if !a.primed {
		a.primed = true
		a.lastSeq = newest
		return nil
	}

	refresh := false
	for _, e := range evs {
		if e.Seq <= a.lastSeq {
			continue
		}
		switch {
		case e.Type == events.AlarmAlert:
			a.alert = e.Message
		case e.IsError():
			a.message = "Error: " + e.Message
		case e.Type == events.AlarmFired, e.Type == events.Recovered:
			a.message = e.Message
		}
		switch e.Type {
		case events.AlarmAdded, events.AlarmRemoved, events.AlarmRearmed, events.AlarmFired:
			refresh = true
		}
	}
	a.lastSeq = max(a.lastSeq, newest)

	if refresh {
		return a.fetchAlarms()
	}
	return nil
}

func (a *App) acceptSuggestion() bool {
	if !a.suggestions.IsVisible() {
		return false
	}
	selected := a.suggestions.Selected()
	if selected == nil {
		return false
	}
	if a.suggestions.Prefix() == "@" {
		value := a.input.Value()
		head := value[:strings.LastIndexByte(value, '@')]
		a.input.SetValue(head + selected.Text + " ")
	} else {
		a.input.SetValue(selected.Text + " ")
	}
	a.input.CursorEnd()
	a.suggestions.Update("", nil)
	return true
}

func (a *App) alarmSuggestions() []SuggestionItem {
	items := make([]SuggestionItem, 0, len(a.alarms))
	for _, al := range a.alarms {
		items = append(items, SuggestionItem{
			Text:        al.ID,
			Description: fmt.Sprintf("%s %s", al.Time, al.Kind),
		})
	}
	return items
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("TIMEREPORTS Alarms")
	header += "  " + daemonStatus
	if a.capability != "" {
		capStyle := lipgloss.NewStyle().Foreground(cyanColor)
		label := fmt.Sprintf("[wake: %s]", a.capability)
		if a.degraded {
			capStyle = lipgloss.NewStyle().Foreground(warningColor)
			label = "[wake: in-app only]"
		}
		header += "  " + capStyle.Render(label)
	}
	clock := clockStyle.Render(a.now.Format("15:04:05"))
	pad := a.width - lipgloss.Width(header) - lipgloss.Width(clock) - 1
	if pad < 2 {
		pad = 2
	}
	header += strings.Repeat(" ", pad) + clock

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	if a.alert != "" {
		b.WriteString(alertStyle.Width(max(a.width, 1)).Render("ALARM  " + a.alert + "   (esc to dismiss)"))
		b.WriteString("\n")
	}

	contentHeight := a.height - 9
	if a.alert != "" {
		contentHeight--
	}
	if contentHeight < 3 {
		contentHeight = 3
	}
	if a.loading && len(a.alarms) == 0 {
		b.WriteString("\n  Loading alarms...\n")
	} else {
		b.WriteString(renderAlarmList(a.alarms, a.selectedIdx, a.now, contentHeight))
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		switch {
		case strings.HasPrefix(a.message, "Error"):
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		case strings.HasPrefix(a.message, "Warning"):
			msgStyle = lipgloss.NewStyle().Foreground(warningColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	active := 0
	for _, al := range a.alarms {
		if al.Active {
			active++
		}
	}
	status := fmt.Sprintf(" Alarms: %d (%d active) | ↑↓:select | Enter:run | Esc:dismiss | Ctrl+C:quit", len(a.alarms), active)
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))

	return b.String()
}

func (a *App) fetchAlarms() tea.Cmd {
	a.loading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		alarms, err := a.client.ListAlarms(ctx)
		if err != nil {
			return errMsg{err}
		}
		return alarmsLoadedMsg{alarms}
	}
}

func (a *App) checkHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		health, err := a.client.Health(ctx)
		return healthMsg{health: health, err: err}
	}
}

func (a *App) pollEvents() tea.Cmd {
	after := a.lastSeq
	if !a.primed {
		after = 0
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		evs, err := a.client.Events(ctx, after)
		if err != nil {
			// offline is reported by the health check
			return nil
		}
		return eventsMsg{evs}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// resolveID maps a command argument to an alarm id. No argument means the
// selected alarm. "@id", a full id, or a unique id prefix are accepted.
func (a *App) resolveID(args []string) (string, error) {
	if len(args) == 0 {
		if len(a.alarms) == 0 {
			return "", errors.New("no alarm selected")
		}
		return a.alarms[a.selectedIdx].ID, nil
	}

	arg := strings.TrimPrefix(args[0], "@")
	for _, al := range a.alarms {
		if al.ID == arg {
			return arg, nil
		}
	}
	var match string
	for _, al := range a.alarms {
		if strings.HasPrefix(al.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("%q matches more than one alarm", arg)
			}
			match = al.ID
		}
	}
	if match != "" {
		return match, nil
	}
	// let the daemon answer not found
	return arg, nil
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "q", "quit", "exit":
		return tea.Quit
	case "refresh", "r":
		return a.fetchAlarms()
	case "rm", "remove", "rearm", "fire":
		id, err := a.resolveID(args)
		if err != nil {
			return func() tea.Msg { return errMsg{err} }
		}
		return a.alarmCommand(cmd, id)
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		switch cmd {
		case "add":
			if len(args) < 1 {
				return commandResultMsg{"Usage: add HH:MM [sound|notification]"}
			}
			kind := models.KindNotification.String()
			if len(args) > 1 {
				kind = strings.ToLower(args[1])
			}
			res, err := a.client.AddAlarm(ctx, args[0], kind)
			if err != nil {
				return errMsg{err}
			}
			if res.Warning != "" {
				return commandResultMsg{"Warning: alarm saved, only the in-app poller will fire it: " + res.Warning}
			}
			return commandResultMsg{fmt.Sprintf("✓ %s alarm at %s, next %s",
				res.Alarm.Kind, res.Alarm.Time, res.NextAt.Local().Format("Mon 15:04"))}

		case "boot":
			rep, err := a.client.Boot(ctx)
			if err != nil {
				return errMsg{err}
			}
			summary := fmt.Sprintf("Recovered: %d scheduled, %d skipped, %d failed", rep.Scheduled, rep.Skipped, rep.Failed)
			if rep.Failed > 0 {
				return commandResultMsg{"Warning: " + summary}
			}
			return commandResultMsg{"✓ " + summary}

		case "help":
			return commandResultMsg{"Commands: add HH:MM [sound|notification], rm [id], rearm [id], fire [id], boot, refresh, quit"}

		default:
			return commandResultMsg{fmt.Sprintf("Unknown command: %s (try help)", cmd)}
		}
	}
}

func (a *App) alarmCommand(cmd, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		switch cmd {
		case "rm", "remove":
			if err := a.client.RemoveAlarm(ctx, id); err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Removed alarm %s", shortID(id))}

		case "rearm":
			res, err := a.client.RearmAlarm(ctx, id)
			if err != nil {
				return errMsg{err}
			}
			if res.Warning != "" {
				return commandResultMsg{"Warning: re-armed without a platform wake: " + res.Warning}
			}
			return commandResultMsg{fmt.Sprintf("✓ Re-armed %s, next %s", res.Alarm.Time, res.NextAt.Local().Format("Mon 15:04"))}

		default: // fire
			res, err := a.client.FireAlarm(ctx, id, dispatch.TriggerManual)
			if err != nil {
				return errMsg{err}
			}
			switch {
			case !res.Fired:
				return commandResultMsg{"Alarm already fired; rearm it first"}
			case res.DeliveryError != "":
				return commandResultMsg{"Error: fired but delivery failed: " + res.DeliveryError}
			default:
				return commandResultMsg{fmt.Sprintf("✓ Fired %s", res.Alarm.Time)}
			}
		}
	}
}

// describeError prefers the daemon's own message over the transport wrapper.
func describeError(err error) string {
	var apiErr *controlplane.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
