// Package localexec provides a local command executor with an allowlist.
package localexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fentz26/timereports/internal/connectors"
)

// argRule decides whether an argument list is acceptable for a command.
type argRule func(args []string) bool

// anyArgs accepts any non-empty argument list.
func anyArgs(args []string) bool { return len(args) > 0 }

// firstArg accepts argument lists starting with one of the given values.
func firstArg(allowed ...string) argRule {
	return func(args []string) bool {
		if len(args) == 0 {
			return false
		}
		for _, a := range allowed {
			if args[0] == a {
				return true
			}
		}
		return false
	}
}

// userSystemctl only permits stopping units on the user bus.
func userSystemctl(args []string) bool {
	return len(args) >= 3 && args[0] == "--user" && args[1] == "stop"
}

// allowedCommands defines the strict allowlist of executable commands.
var allowedCommands = map[string]argRule{
	"systemd-run":       firstArg("--user"),
	"systemctl":         userSystemctl,
	"notify-send":       anyArgs,
	"paplay":            anyArgs,
	"canberra-gtk-play": anyArgs,
}

// LocalExec implements the Connector interface for local command execution.
type LocalExec struct {
	workDir string
}

// New creates a new LocalExec connector.
func New(workDir string) *LocalExec {
	return &LocalExec{workDir: workDir}
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks if a command is in the allowlist.
func (l *LocalExec) IsAllowed(cmd string, args []string) bool {
	rule, ok := allowedCommands[cmd]
	if !ok {
		return false
	}
	return rule(args)
}

// Available reports whether cmd is allowlisted and found on PATH.
func (l *LocalExec) Available(cmd string) bool {
	if _, ok := allowedCommands[cmd]; !ok {
		return false
	}
	_, err := exec.LookPath(cmd)
	return err == nil
}

// Execute runs a command if it's in the allowlist.
func (l *LocalExec) Execute(ctx context.Context, cmd string, args []string) (*connectors.ExecResult, error) {
	if !l.IsAllowed(cmd, args) {
		return nil, fmt.Errorf("command not allowed: %s %s", cmd, strings.Join(args, " "))
	}

	execCmd := exec.CommandContext(ctx, cmd, args...)
	if l.workDir != "" {
		execCmd.Dir = l.workDir
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	exitCode := 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return nil, fmt.Errorf("exec error: %w", err)
		}
	}

	return &connectors.ExecResult{
		Command:  cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
