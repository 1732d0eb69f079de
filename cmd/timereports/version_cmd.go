package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/controlplane"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of timereports",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("timereports version %s\n", controlplane.Version)
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}
