// Package config implements the "dittoaccel config" subcommands.
package config

import "github.com/spf13/cobra"

// Cmd is the parent of the configuration subcommands.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
	Cmd.AddCommand(editCmd)
}

// configPath returns the inherited --config flag.
func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
