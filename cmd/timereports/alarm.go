package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/models"
)

var alarmCmd = &cobra.Command{
	Use:   "alarm",
	Short: "Manage alarms",
}

var alarmAddCmd = &cobra.Command{
	Use:   "add HH:MM [sound|notification]",
	Short: "Add a daily alarm",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAlarmAdd,
}

var alarmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alarms sorted by time",
	Args:  cobra.NoArgs,
	RunE:  runAlarmList,
}

var alarmRemoveCmd = &cobra.Command{
	Use:     "rm [alarm-id]",
	Aliases: []string{"remove"},
	Short:   "Remove an alarm",
	Args:    cobra.ExactArgs(1),
	RunE:    runAlarmRemove,
}

var alarmRearmCmd = &cobra.Command{
	Use:   "rearm [alarm-id]",
	Short: "Re-activate a fired alarm",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlarmRearm,
}

var listJSON bool

func init() {
	alarmCmd.AddCommand(alarmAddCmd, alarmListCmd, alarmRemoveCmd, alarmRearmCmd)
	alarmListCmd.Flags().BoolVar(&listJSON, "json", false, "Print the alarm list as JSON")
}

func runAlarmAdd(cmd *cobra.Command, args []string) error {
	kind := models.KindNotification.String()
	if len(args) > 1 {
		kind = args[1]
	}

	return withAPI(func(ctx context.Context, api alarmAPI) error {
		res, err := api.AddAlarm(ctx, args[0], kind)
		if err != nil {
			return err
		}
		fmt.Printf("Created alarm: %s (%s at %s)\n", res.Alarm.ID, res.Alarm.Kind, res.Alarm.Time)
		fmt.Printf("Next:          %s\n", res.NextAt.Local().Format("Mon Jan 2 15:04"))
		if res.Warning != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warning)
		}
		return nil
	})
}

func runAlarmList(cmd *cobra.Command, args []string) error {
	return withAPI(func(ctx context.Context, api alarmAPI) error {
		alarms, err := api.ListAlarms(ctx)
		if err != nil {
			return err
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(alarms)
		}

		if len(alarms) == 0 {
			fmt.Println("No alarms found")
			return nil
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tTYPE\tSTATE\tNEXT")
		for _, a := range alarms {
			state, next := "fired", "-"
			if a.Active {
				state = "active"
				next = a.Time.Next(now).Format("Mon 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncateID(a.ID), a.Time, a.Kind, state, next)
		}
		return w.Flush()
	})
}

func runAlarmRemove(cmd *cobra.Command, args []string) error {
	return withAPI(func(ctx context.Context, api alarmAPI) error {
		id, err := resolveAlarmID(ctx, api, args[0])
		if err != nil {
			return err
		}
		if err := api.RemoveAlarm(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Removed alarm %s\n", id)
		return nil
	})
}

func runAlarmRearm(cmd *cobra.Command, args []string) error {
	return withAPI(func(ctx context.Context, api alarmAPI) error {
		id, err := resolveAlarmID(ctx, api, args[0])
		if err != nil {
			return err
		}
		res, err := api.RearmAlarm(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Re-armed alarm %s, next %s\n", id, res.NextAt.Local().Format("Mon Jan 2 15:04"))
		if res.Warning != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warning)
		}
		return nil
	})
}

// resolveAlarmID expands a unique id prefix, as printed by alarm list, to
// the full id. Anything else is passed through for the API to reject.
func resolveAlarmID(ctx context.Context, api alarmAPI, arg string) (string, error) {
	alarms, err := api.ListAlarms(ctx)
	if err != nil {
		return "", err
	}
	return matchID(alarms, arg)
}

func matchID(alarms []models.Alarm, arg string) (string, error) {
	for _, a := range alarms {
		if a.ID == arg {
			return arg, nil
		}
	}
	var match string
	for _, a := range alarms {
		if strings.HasPrefix(a.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("alarm id %q is ambiguous", arg)
			}
			match = a.ID
		}
	}
	if match == "" {
		return arg, nil
	}
	return match, nil
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
