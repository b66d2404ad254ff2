package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long:  `Display the current status of the claude-proxy gateway.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	running, lock := procMgr.IsRunning()
	cfg := cfgMgr.Get()

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-15s: %v\n", "Running", running)

	if lock != nil {
		fmt.Printf("  %-15s: %d\n", "PID", lock.PID)
		fmt.Printf("  %-15s: %s\n", "Started", lock.StartedAt.Format("2006-01-02 15:04:05"))
	}

	if cfg != nil {
		fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
		fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
		fmt.Printf("  %-15s: %s\n", "Endpoint", fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port))
	}

	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.EnvPath())
	fmt.Printf("  %-15s: v%s\n", "Version", Version)
}
