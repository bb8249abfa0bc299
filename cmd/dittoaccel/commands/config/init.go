package config

import (
	"fmt"

	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration with a 64MiB malloc bdev.

Examples:
  dittoaccel config init
  dittoaccel config init --config /etc/dittoaccel/config.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		var err error
		if path == "" {
			path, err = config.InitConfig(initForce)
		} else {
			err = config.InitConfigToPath(path, initForce)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}
