package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/marmos91/dittoaccel/pkg/config"
	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the configuration in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("configuration file not found: %s\n\n"+
				"Create it first with:\n"+
				"  dittoaccel config init --config %s", path, path)
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = os.Getenv("VISUAL")
		}
		if editor == "" {
			editor = "vi"
		}

		c := exec.Command(editor, path)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("failed to run editor: %w", err)
		}

		// Catch mistakes before the running daemon reloads them.
		if _, err := config.Load(path); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
		return nil
	},
}
