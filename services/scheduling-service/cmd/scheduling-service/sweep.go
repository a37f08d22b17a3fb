package main

import (
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-waitlist",
		Short: "Expire notified waitlist entries whose response window has passed, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := runtime.NewLogger("scheduling-service")
			cfg, err := loadSettings(logger)
			if err != nil {
				return err
			}
			logger = runtime.NewLogger(cfg.Service)

			ctx, stop := runtime.SignalContextFrom(cmd.Context())
			defer stop()

			a, err := newApp(ctx, logger, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.waitlist.ExpireDue(ctx)
			if err != nil {
				logger.Error("waitlist sweep failed", "err", err)
				return err
			}
			logger.Info("waitlist sweep finished", "expired", n)
			return nil
		},
	}
}
