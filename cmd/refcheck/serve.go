package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/refcheck/internal/http/server"
	"github.com/diagnosis/refcheck/internal/reminders"
	"github.com/diagnosis/refcheck/pkg/config"
	"github.com/diagnosis/refcheck/pkg/logger"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := config.Load()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate && a.pool != nil {
				if err := a.migrate(ctx); err != nil {
					return err
				}
			}

			if cfg.Tokens.ReminderInterval > 0 {
				sweeper := reminders.NewSweeper(a.tokens, a.requestRepo, a.mailer, a.links, a.bus, nil)
				go sweeper.Run(ctx, cfg.Tokens.ReminderInterval)
				logger.Info("Reminder sweep enabled", "interval", cfg.Tokens.ReminderInterval.String())
			}

			srv := &http.Server{
				Addr: addr(cfg.Server.Port),
				Handler: server.NewRouter(server.Deps{
					ServiceName:     cfg.App.Name,
					AllowedOrigins:  cfg.Server.AllowedOrigins,
					Users:           a.users,
					JWTSecret:       cfg.Auth.JWTSecret,
					TokenTTL:        cfg.Auth.AccessTokenTTL,
					Wizards:         a.wizards,
					Requests:        a.requests,
					Respond:         a.respond,
					Idempotency:     a.store,
					Limiter:         a.limiter,
					PublicRateLimit: cfg.Tokens.PublicRateLimit,
				}),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			// Graceful shutdown
			go func() {
				<-ctx.Done()
				logger.Info("Shutting down refcheck API...")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Server shutdown error", "error", err)
				}
			}()

			logger.Info("Starting refcheck API", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Server error", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}
