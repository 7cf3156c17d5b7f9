package cmd

import (
	"fmt"
	"os"

	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAreasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "areas",
		Short: "Work with template area records",
	}
	cmd.AddCommand(newAreasValidateCmd())
	return cmd
}

func newAreasValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check an area record and print the parsed areas",
		Long: `Parses an area record the way template submissions are parsed (header,
field count, unique slots, corner winding) and prints the areas as YAML.
Use "-" to read from stdin.`,
		Example: `  regatasimulator areas validate data/templates/3f1c.../areas.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open area record: %w", err)
				}
				defer f.Close()
				in = f
			}

			list, err := areas.Parse(in)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(list); err != nil {
				return fmt.Errorf("failed to print areas: %w", err)
			}
			return enc.Close()
		},
	}
}
