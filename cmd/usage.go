package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/usagecast/usagecast/app"
	"github.com/usagecast/usagecast/config"
	"github.com/usagecast/usagecast/infra/logger"
)

var (
	usageResourceID int
	usageUsername   string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inject a synthetic usage-started event",
	RunE:  emitUsage,
}

func init() {
	usageCmd.Flags().IntVar(&usageResourceID, "resource", 1, "resource id")
	usageCmd.Flags().StringVar(&usageUsername, "user", "cli-test", "username for the synthetic session")
	rootCmd.AddCommand(usageCmd)
}

func emitUsage(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	logg := logger.New("usage-command")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := svc.Run(runCtx); err != nil {
			logg.Errorf("service: %v", err)
		}
	}()

	svc.EmitUsageStarted(usageResourceID, usageUsername)
	logg.Infof("usage-started event emitted for resource %d", usageResourceID)

	// Leave time for the publishers and their retry queues to drain.
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
	return nil
}
