package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent decision records",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

var auditLimit int

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of records to show")
}

func runAudit(cmd *cobra.Command, args []string) error {
	return withAPI(func(ctx context.Context, api alarmAPI) error {
		entries, err := api.Audit(ctx, auditLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No records found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tALARM\tDETAILS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Outcome, truncateID(e.AlarmID), truncate(e.Details, 60))
		}
		return w.Flush()
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
