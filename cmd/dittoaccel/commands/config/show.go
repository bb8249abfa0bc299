package config

import (
	"fmt"
	"os"

	"github.com/marmos91/dittoaccel/internal/cli/output"
	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides.

Examples:
  dittoaccel config show
  dittoaccel config show -o json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	// The configuration only carries yaml tags; JSON goes through the YAML
	// document so field names match the file.
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if format != output.FormatJSON {
		_, err = os.Stdout.Write(data)
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to convert config: %w", err)
	}
	return output.PrintJSON(os.Stdout, doc)
}
