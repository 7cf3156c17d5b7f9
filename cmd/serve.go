package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/admin"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/routes"
	"github.com/lucasaxm/RegataSimulator/internal/scheduler"
	"github.com/lucasaxm/RegataSimulator/internal/telegram"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Runs the bot until interrupted: answers Telegram updates, posts memes and
backups on schedule and, when an admin address is configured, serves the
admin API.`,
		Example: `  # Run with settings from regatasimulator.yaml and the environment
  regatasimulator serve

  # Expose the admin API
  REGATA_ADMIN_ADDR=:8888 REGATA_ADMIN_TOKEN=secret regatasimulator serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := connect(cfg)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, client)
			if err != nil {
				return err
			}
			defer a.Close()

			botUsername := cfg.Telegram.BotUsername
			if botUsername == "" {
				botUsername = client.Username()
			}
			router := routes.NewRouter(a.engine, routes.Default(routes.Options{
				CreatorID:   cfg.Telegram.CreatorID,
				BotUsername: botUsername,
			})...)

			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			// runs started before shutdown are allowed to finish
			runCtx := context.WithoutCancel(ctx)

			sched := scheduler.New(a.engine, loc)
			if err := sched.Add(runCtx,
				scheduler.Job{Name: "meme", Spec: cfg.Schedule.Meme, Action: workflow.GetRandomTemplate},
				scheduler.Job{Name: "backup", Spec: cfg.Schedule.Backup, Action: workflow.BackupDatabase},
			); err != nil {
				return err
			}
			g.Go(func() error {
				sched.Run(ctx)
				return nil
			})

			poller := telegram.NewPoller(client, cfg.Telegram.PollTimeout, cfg.Telegram.Concurrency)
			g.Go(func() error {
				return poller.Run(ctx, func(_ context.Context, t *chat.Trigger) {
					if n := router.Dispatch(runCtx, t); n == 0 {
						slog.Debug("No route matched", "update_id", t.UpdateID, "trigger", t.Kind())
					}
				})
			})

			if cfg.Admin.Addr != "" {
				api, err := admin.New(a.engine, a.curator, cfg.Admin.Token)
				if err != nil {
					return err
				}
				g.Go(func() error {
					return serveHTTP(ctx, cfg.Admin.Addr, api.Handler())
				})
			}

			slog.Info("RegataSimulator running", "bot", botUsername, "channel_id", cfg.Telegram.ChannelID)
			return g.Wait()
		},
	}

	return cmd
}

// serveHTTP blocks until ctx is done, then shuts the server down gracefully
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Admin API available", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation (Ctrl+C) or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down admin API...")
		// Give server 5 seconds to shut down gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Admin API stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}
