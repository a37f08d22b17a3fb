package main

import (
	"fmt"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/store/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema())
				return err
			}
			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			logger := runtime.NewLogger(config.String("SERVICE_NAME", "scheduling-service"))

			ctx, stop := runtime.SignalContextFrom(cmd.Context())
			defer stop()

			pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
