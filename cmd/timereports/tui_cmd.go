package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive alarms tab",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url := daemonURL(cfg)

	if reachDaemon(url) == nil {
		fmt.Println("timereports daemon not running. Starting background service...")
		if err := startDaemon(url); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.NewFromAddr(url)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func startDaemon(url string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	argv := []string{"daemon", "--log-file"}
	if configPath != "" {
		argv = append([]string{"--config", configPath}, argv...)
	}
	cmd := exec.Command(exe, argv...)
	// Detach process so it survives TUI exit
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	// reap it if it dies early, e.g. because another instance holds the lock
	go cmd.Wait()

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if reachDaemon(url) != nil {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", url)
}
