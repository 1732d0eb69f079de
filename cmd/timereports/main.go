package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "timereports",
	Short: "timereports - report alarm scheduler",
	Long: `timereports keeps a list of daily report alarms, registers them with the
operating system so they survive restarts, and delivers each one once as a
sound or a desktop notification.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath string
	apiAddr    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.timereports/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "Daemon API address (default from the listen setting)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(alarmCmd)
	rootCmd.AddCommand(bootCmd)
	rootCmd.AddCommand(fireCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config, or the default location when it is unset.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.LoadConfigFromHome()
	}
	return config.LoadConfig(configPath)
}

// daemonURL is --api when given, otherwise the configured listen address.
func daemonURL(cfg *config.Config) string {
	if apiAddr != "" {
		return apiAddr
	}
	return cfg.APIURL()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
