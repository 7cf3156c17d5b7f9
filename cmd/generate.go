package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/spf13/cobra"
)

// cliTrigger tags runs started from the command line
const cliTrigger = "cli"

func trailString(trail []workflow.Action) string {
	names := make([]string, len(trail))
	for i, a := range trail {
		names[i] = a.String()
	}
	return strings.Join(names, " -> ")
}

// runError tells whether a run delivered: it must reach last without any
// step reporting a failure
func runError(trail []workflow.Action, wc *workflow.Context, last workflow.Action) error {
	if len(trail) == 0 {
		return errors.New("did not start")
	}
	stopped := trail[len(trail)-1]
	if wc.Err != nil {
		return fmt.Errorf("stopped at %s: %w", stopped, wc.Err)
	}
	if stopped != last {
		return fmt.Errorf("stopped at %s", stopped)
	}
	return nil
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one meme now",
		Long: `Picks a template and sources the same way the scheduled job does and posts
the result to the channel. With --output the meme is written to a file instead
and nothing is sent or recorded.`,
		Example: `  # Post a meme to the channel
  regatasimulator generate

  # Try the selection and composition locally
  regatasimulator generate --output meme.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			var client chat.Client
			if output == "" {
				tg, err := connect(cfg)
				if err != nil {
					return err
				}
				client = tg
			}
			a, err := newApp(cmd.Context(), cfg, client)
			if err != nil {
				return err
			}
			defer a.Close()

			engine := a.engine
			if output != "" {
				registry := a.steps.Registry()
				registry[workflow.SendMeme] = workflow.StepFunc(func(_ context.Context, wc *workflow.Context) workflow.Action {
					if err := moveFile(wc.MemeFile, output); err != nil {
						wc.Log.Error("Failed to write meme", "error", err)
						wc.Failed(err)
						return workflow.None
					}
					wc.MemeFile = output
					return workflow.None
				})
				engine = workflow.NewEngine(registry, cfg.MaxSteps)
			}

			wc := workflow.NewContext(&chat.Trigger{Source: cliTrigger})
			trail := engine.Run(cmd.Context(), workflow.GetRandomTemplate, wc)
			slog.Info("Generation finished", "trail", trailString(trail))
			if err := runError(trail, wc, workflow.SendMeme); err != nil {
				return fmt.Errorf("generation %w", err)
			}
			if output != "" {
				if _, err := os.Stat(output); err != nil {
					return fmt.Errorf("meme was not written: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\ttemplate=%s\tsources=%d\n", output, wc.Template.ID, len(wc.Sources))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the meme to this file instead of posting it")

	return cmd
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read meme: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write meme: %w", err)
	}
	return os.Remove(src)
}

func newComposeCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compose <template-dir> <source>...",
		Short: "Compose a template directory with the given source images",
		Long: `Renders a meme from a template directory (template image plus areas.csv)
and one source image per area, in slot order. Nothing is read from or written
to the store.`,
		Example: `  regatasimulator compose data/templates/3f1c... cat.jpg dog.png -o out.png`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := filepath.Clean(args[0])
			list, err := assets.ReadAreas(dir)
			if err != nil {
				return err
			}
			lib := &assets.Library{TemplatesDir: filepath.Dir(dir)}
			templateFile, err := lib.TemplateFile(filepath.Base(dir))
			if err != nil {
				return err
			}

			pipeline, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			if err := pipeline.Compose(cmd.Context(), templateFile, list, args[1:], output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "meme.png", "Output image path")

	return cmd
}
