package config

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Check the configuration for syntax errors, invalid values and
inconsistent references (unknown opcodes, missing base bdevs, undefined
keys).

Examples:
  dittoaccel config validate
  dittoaccel config validate --config /etc/dittoaccel/config.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if len(cfg.Accel.CryptoKeys) > 0 || hasInlineKeys(cfg) {
		warnings = append(warnings, "file holds key material, keep it readable by the daemon user only")
	}
	if cfg.Accel.ReplayFile == "" {
		warnings = append(warnings, "no replay_file, keys created over the API are lost on restart")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")
	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	_, _ = fmt.Fprintf(out, "  Modules:      %s\n", strings.Join(cfg.Accel.ModuleNames(), ", "))
	_, _ = fmt.Fprintf(out, "  Crypto keys:  %d\n", len(cfg.Accel.CryptoKeys))
	_, _ = fmt.Fprintf(out, "  Bdevs:        %d malloc, %d badger, %d s3, %d crypto\n",
		len(cfg.Bdevs.Malloc), len(cfg.Bdevs.Badger), len(cfg.Bdevs.S3), len(cfg.Bdevs.Crypto))
	_, _ = fmt.Fprintf(out, "  API port:     %d\n", cfg.API.Port)
	_, _ = fmt.Fprintf(out, "  Log level:    %s\n", cfg.Logging.Level)
	return nil
}

func hasInlineKeys(cfg *config.Config) bool {
	for _, c := range cfg.Bdevs.Crypto {
		if c.Key != "" {
			return true
		}
	}
	return false
}
