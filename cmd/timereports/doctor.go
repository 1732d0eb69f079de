package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/config"
	"github.com/fentz26/timereports/internal/connectors/localexec"
	"github.com/fentz26/timereports/internal/platform"
	"github.com/fentz26/timereports/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Show which platform integrations this host offers",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	argv, err := fireCommand(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	conn := localexec.New("")
	d := platform.NewDetector(platform.Deps{Available: conn.Available, FireCommand: argv})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATION\tROLE\tFOUND\tDETAIL")
	for _, in := range d.Scan(cfg.SoundAsset()) {
		found := "no"
		if in.Found {
			found = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", in.Name, in.Role, found, in.Detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nConfigured capability: %s\n", cfg.Platform.Capability)
	if cfg.Platform.Capability == "auto" {
		fmt.Printf("auto resolves to:      %s\n", d.AutoCapability())
	}
	if h := reachDaemon(daemonURL(cfg)); h != nil {
		fmt.Printf("Daemon:                running at %s\n", daemonURL(cfg))
	} else {
		fmt.Println("Daemon:                not running")
	}
	fmt.Printf("Instance lock:         %s\n", instanceLockStatus(cfg))
	return nil
}

// instanceLockStatus reports who holds the daemon's instance lock. A
// daemon that crashed still shows here until its lease expires.
func instanceLockStatus(cfg *config.Config) string {
	if _, err := os.Stat(cfg.DBPath()); err != nil {
		return "free (no database yet)"
	}
	db, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	defer db.Close()

	lock, err := db.GetLock(instanceResource)
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	if lock == nil {
		return "free"
	}
	return fmt.Sprintf("held by %s until %s", lock.HolderID, lock.ExpiresAt.Local().Format("15:04:05"))
}
