package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/dispatch"
)

var fireCmd = &cobra.Command{
	Use:   "fire",
	Short: "Deliver an alarm (run by OS timers on expiry)",
	Long: `Delivers the alarm with the given id, unless it already fired. The alarm
is looked up again by id; --time and --type only describe what the timer was
registered for. The fire is forwarded to a running daemon when there is one.`,
	Args: cobra.NoArgs,
	RunE: runFire,
}

var (
	fireID     string
	fireTime   string
	fireType   string
	fireManual bool
)

func init() {
	fireCmd.Flags().StringVar(&fireID, "id", "", "Alarm ID (required)")
	fireCmd.Flags().StringVar(&fireTime, "time", "", "Registered time of day")
	fireCmd.Flags().StringVar(&fireType, "type", "", "Registered alarm type")
	fireCmd.Flags().BoolVar(&fireManual, "manual", false, "Record the fire as manual instead of a platform wake")
	fireCmd.MarkFlagRequired("id")
}

func runFire(cmd *cobra.Command, args []string) error {
	trigger := dispatch.TriggerPlatform
	if fireManual {
		trigger = dispatch.TriggerManual
	}

	return withAPI(func(ctx context.Context, api alarmAPI) error {
		res, err := api.FireAlarm(ctx, fireID, trigger)
		if err != nil {
			return err
		}
		if !res.Fired {
			fmt.Printf("Alarm %s already fired or removed, nothing to do\n", fireID)
			return nil
		}
		fmt.Printf("Fired %s alarm at %s\n", res.Alarm.Kind, res.Alarm.Time)
		if res.DeliveryError != "" {
			fmt.Fprintf(os.Stderr, "Delivery failed: %s\n", res.DeliveryError)
		}
		if fireTime != "" && fireTime != res.Alarm.Time.String() {
			fmt.Fprintf(os.Stderr, "Note: timer was registered for %s, alarm is now %s\n", fireTime, res.Alarm.Time)
		}
		return nil
	})
}
