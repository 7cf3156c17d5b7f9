package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/report"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/spf13/cobra"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Send the store, templates and sources to the backup chat",
		Long: `Runs the weekly backup once: a store snapshot and a parquet export of the
generation history, the template and source directories zipped in chunks, and
the catalog report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Telegram.BackupChatID == 0 {
				return fmt.Errorf("invalid configuration: TELEGRAM_BACKUP_CHAT_ID is required")
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

			wc := workflow.NewContext(&chat.Trigger{Source: cliTrigger})
			trail := a.engine.Run(cmd.Context(), workflow.BackupDatabase, wc)
			slog.Info("Backup finished", "trail", trailString(trail))
			if err := runError(trail, wc, workflow.SendMessage); err != nil {
				return fmt.Errorf("backup %w", err)
			}
			return nil
		},
	}
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var stdout bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Send the catalog report to the backup chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			if stdout {
				store, err := openStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				text, err := report.Build(cmd.Context(), store)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
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

			wc := workflow.NewContext(&chat.Trigger{Source: cliTrigger})
			trail := a.engine.Run(cmd.Context(), workflow.SendReport, wc)
			slog.Info("Report finished", "trail", trailString(trail))
			if err := runError(trail, wc, workflow.SendMessage); err != nil {
				return fmt.Errorf("report %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the report instead of sending it")

	return cmd
}
