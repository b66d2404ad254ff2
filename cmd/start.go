package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/claude-proxy/internal/config"
	"github.com/Davincible/claude-proxy/internal/gateway"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long:  `Start the claude-proxy gateway in the foreground.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	if err := ensureConfigExists(); err != nil {
		return err
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if running, lock := procMgr.IsRunning(); running {
		return fmt.Errorf("gateway already running with pid %d", lock.PID)
	}

	if err := procMgr.WritePID(); err != nil {
		return fmt.Errorf("write pid lock: %w", err)
	}
	defer procMgr.CleanupPID()

	if err := cfgMgr.Watch(func(reloaded *config.Config) {
		logger.Info("configuration reloaded")
		cfg = reloaded
	}); err != nil {
		logger.Warn("could not start config watcher", "error", err)
	}

	srv := gateway.New(cfgMgr, procMgr, logger)

	color.Green("Starting %s v%s...", AppName, Version)
	color.Green("claude-proxy listening on %s:%d", cfg.Host, cfg.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Start(ctx)
}
