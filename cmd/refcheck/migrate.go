package main

import (
	"github.com/spf13/cobra"

	"github.com/diagnosis/refcheck/pkg/config"
	"github.com/diagnosis/refcheck/pkg/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.migrate(ctx); err != nil {
				return err
			}
			logger.Info("Schema applied")
			return nil
		},
	}
}
