package platform

import (
	"os"
	"strings"
)

// Integration is one host facility the pipeline can use.
type Integration struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Found  bool   `json:"found"`
	Detail string `json:"detail,omitempty"`
}

// Detector reports which platform integrations this host offers. It uses the
// same probes as Select, so its answer matches what the daemon will choose.
type Detector struct {
	deps Deps
	stat func(path string) bool
}

// NewDetector creates a detector over deps.Available and deps.Getenv.
func NewDetector(deps Deps) *Detector {
	if deps.Available == nil {
		deps.Available = func(string) bool { return false }
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	return &Detector{deps: deps, stat: fileExists}
}

// Scan checks every integration. soundAsset is the configured audio file.
func (d *Detector) Scan(soundAsset string) []Integration {
	commands := []struct{ name, role string }{
		{"systemd-run", "register OS timers"},
		{"systemctl", "cancel OS timers"},
		{"notify-send", "desktop notifications"},
		{"paplay", "play the alarm sound"},
		{"canberra-gtk-play", "fallback alarm sound"},
	}

	found := make([]Integration, 0, len(commands)+3)
	for _, c := range commands {
		found = append(found, Integration{Name: c.name, Role: c.role, Found: d.deps.Available(c.name)})
	}

	runtimeDir := d.deps.Getenv("XDG_RUNTIME_DIR")
	found = append(found, Integration{
		Name:   "XDG_RUNTIME_DIR",
		Role:   "user systemd session",
		Found:  runtimeDir != "",
		Detail: runtimeDir,
	})
	found = append(found, Integration{
		Name:   "fire command",
		Role:   "program OS timers start",
		Found:  len(d.deps.FireCommand) > 0,
		Detail: strings.Join(d.deps.FireCommand, " "),
	})
	found = append(found, Integration{
		Name:   "sound asset",
		Role:   "audio file for sound alarms",
		Found:  soundAsset != "" && d.stat(soundAsset),
		Detail: soundAsset,
	})
	return found
}

// AutoCapability names what the auto setting resolves to on this host.
func (d *Detector) AutoCapability() string {
	if systemdUsable(d.deps) {
		return "systemd"
	}
	return Noop{}.Name()
}

func systemdUsable(deps Deps) bool {
	return deps.Available("systemd-run") && deps.Getenv("XDG_RUNTIME_DIR") != "" && len(deps.FireCommand) > 0
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
