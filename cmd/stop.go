package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the gateway",
	Long:  `Stop the running claude-proxy gateway.`,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, _ []string) error {
	color.Yellow("Stopping %s...", AppName)

	running, _ := procMgr.IsRunning()
	if !running {
		color.Yellow("Gateway is not running")
		return nil
	}

	if err := procMgr.Stop(); err != nil {
		return fmt.Errorf("stop gateway: %w", err)
	}

	color.Green("Gateway stopped successfully")
	return nil
}
