package platform

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/fentz26/timereports/internal/config"
	"github.com/fentz26/timereports/internal/connectors"
)

// Deps are the host handles Select builds implementations from.
type Deps struct {
	Conn connectors.Connector
	// Available reports whether a command can be run on this host.
	Available   func(cmd string) bool
	Getenv      func(key string) string
	Clock       clockwork.Clock
	Logger      *slog.Logger
	FireCommand []string
}

// Platform bundles the implementations chosen for this process.
type Platform struct {
	Capability AlarmCapability
	Notifier   Notifier
	Player     SoundPlayer
}

// Select picks implementations once at start. Nothing is re-probed later.
func Select(cfg config.PlatformConfig, deps Deps) (*Platform, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Available == nil {
		deps.Available = func(string) bool { return false }
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	logger := deps.Logger.With("component", "platform")

	capability, err := selectCapability(cfg.Capability, deps)
	if err != nil {
		return nil, err
	}

	var notifier Notifier
	switch cfg.Notifier {
	case "webhook":
		notifier = MultiNotifier{NewWebhookNotifier(cfg.WebhookURL), NewLogNotifier(deps.Logger)}
	case "log":
		notifier = NewLogNotifier(deps.Logger)
	case "desktop", "":
		if deps.Available("notify-send") {
			notifier = NewDesktopNotifier(deps.Conn)
		} else {
			logger.Warn("notify-send not found, notifications go to the log")
			notifier = NewLogNotifier(deps.Logger)
		}
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}

	var player SoundPlayer = NoopPlayer{}
	if deps.Available("paplay") || deps.Available("canberra-gtk-play") {
		player = NewCommandPlayer(deps.Conn)
	} else {
		logger.Warn("no audio player found, sound alarms only alert in the UI")
	}

	logger.Info("platform selected", "capability", capability.Name(), "notifier", cfg.Notifier)
	return &Platform{Capability: capability, Notifier: notifier, Player: player}, nil
}

func selectCapability(name string, deps Deps) (AlarmCapability, error) {
	switch name {
	case "none":
		return Noop{}, nil
	case "timer":
		return NewTimerAlarms(deps.Clock, deps.Logger), nil
	case "systemd":
		return NewSystemdAlarms(deps.Conn, deps.FireCommand, deps.Logger), nil
	case "auto", "":
		if systemdUsable(deps) {
			return NewSystemdAlarms(deps.Conn, deps.FireCommand, deps.Logger), nil
		}
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown capability %q", name)
	}
}
