package config

import (
	"fmt"
	"os"

	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/spf13/cobra"
)

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate the JSON schema of the configuration",
	Long: `Generate a JSON schema for IDE completion and validation of the
configuration file.

Examples:
  dittoaccel config schema
  dittoaccel config schema --output config.schema.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.JSONSchema()
		if err != nil {
			return err
		}
		if schemaOutput != "" {
			if err := os.WriteFile(schemaOutput, schema, 0644); err != nil {
				return fmt.Errorf("failed to write schema file: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
			return nil
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")
}
