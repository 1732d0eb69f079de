package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Re-register every active alarm with the platform",
	Long: `Runs boot recovery. Safe to run any number of times; meant for a systemd
user unit or a login hook so wakes lost at reboot come back.`,
	Args: cobra.NoArgs,
	RunE: runBoot,
}

func runBoot(cmd *cobra.Command, args []string) error {
	return withAPI(func(ctx context.Context, api alarmAPI) error {
		rep, err := api.Boot(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled: %d\n", rep.Scheduled)
		fmt.Printf("Skipped:   %d\n", rep.Skipped)
		fmt.Printf("Failed:    %d\n", rep.Failed)
		fmt.Printf("Took:      %s\n", rep.Took.Round(time.Millisecond))
		for _, e := range rep.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		return nil
	})
}
