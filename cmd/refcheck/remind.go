package main

import (
	"github.com/spf13/cobra"

	"github.com/diagnosis/refcheck/internal/reminders"
	"github.com/diagnosis/refcheck/pkg/config"
	"github.com/diagnosis/refcheck/pkg/logger"
)

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send one round of respondent reminders and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			sent, err := reminders.NewSweeper(a.tokens, a.requestRepo, a.mailer, a.links, a.bus, nil).Sweep(ctx)
			if err != nil {
				return err
			}
			logger.Info("Reminder sweep finished", "sent", sent)
			return nil
		},
	}
}
