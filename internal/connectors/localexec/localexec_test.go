package localexec

import (
	"context"
	"strings"
	"testing"
)

func TestIsAllowed(t *testing.T) {
	exec := New("")

	tests := []struct {
		cmd     string
		args    []string
		allowed bool
	}{
		{"systemd-run", []string{"--user", "--unit=timereports-alarm-1", "true"}, true},
		{"systemd-run", []string{"--system", "true"}, false}, // system bus not allowed
		{"systemctl", []string{"--user", "stop", "timereports-alarm-1.timer"}, true},
		{"systemctl", []string{"--user", "start", "x.timer"}, false},
		{"systemctl", []string{"--user", "stop"}, false}, // no unit
		{"systemctl", []string{"stop", "sshd"}, false},
		{"notify-send", []string{"title", "body"}, true},
		{"notify-send", []string{}, false},
		{"paplay", []string{"/tmp/alarm.mp3"}, true},
		{"canberra-gtk-play", []string{"--id=alarm-clock-elapsed"}, true},
		{"rm", []string{"-rf", "/"}, false},
		{"unknown", []string{"cmd"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.cmd+" "+strings.Join(tt.args, " "), func(t *testing.T) {
			got := exec.IsAllowed(tt.cmd, tt.args)
			if got != tt.allowed {
				t.Errorf("IsAllowed(%s, %v) = %v, want %v", tt.cmd, tt.args, got, tt.allowed)
			}
		})
	}
}

func TestExecute_NotAllowed(t *testing.T) {
	exec := New("")

	_, err := exec.Execute(context.Background(), "rm", []string{"-rf", "/"})
	if err == nil {
		t.Error("Expected error for non-allowed command")
	}
	if !strings.Contains(err.Error(), "command not allowed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestAvailable(t *testing.T) {
	exec := New("")
	if exec.Available("rm") {
		t.Error("rm is not allowlisted and must not be available")
	}
}

func TestName(t *testing.T) {
	exec := New("")
	if exec.Name() != "localexec" {
		t.Errorf("Expected name 'localexec', got %s", exec.Name())
	}
}
