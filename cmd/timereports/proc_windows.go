//go:build windows

package main

import (
	"os/exec"
)

func configureDaemonProc(cmd *exec.Cmd) {
	// Windows doesn't use Setsid. A started process already outlives its parent.
}
