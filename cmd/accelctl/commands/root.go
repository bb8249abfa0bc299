// Package commands implements the accelctl client.
package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	bdevcmd "github.com/marmos91/dittoaccel/cmd/accelctl/commands/bdev"
	configcmd "github.com/marmos91/dittoaccel/cmd/accelctl/commands/config"
	keycmd "github.com/marmos91/dittoaccel/cmd/accelctl/commands/key"
	modulecmd "github.com/marmos91/dittoaccel/cmd/accelctl/commands/module"
	opcodecmd "github.com/marmos91/dittoaccel/cmd/accelctl/commands/opcode"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "accelctl",
	Short: "Manage a running dittoaccel daemon",
	Long: `accelctl talks to the dittoaccel REST API to inspect the acceleration
framework, manage crypto keys and create or delete crypto bdevs.

The server defaults to ` + cmdutil.DefaultServer + `, override it with --server or
` + cmdutil.EnvServer + `.

Use "accelctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Timeout, _ = cmd.Flags().GetDuration("timeout")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if versionShort {
			_, _ = fmt.Fprintln(out, Version)
			return
		}
		_, _ = fmt.Fprintf(out, "accelctl %s\n", Version)
		_, _ = fmt.Fprintf(out, "  Commit:     %s\n", Commit)
		_, _ = fmt.Fprintf(out, "  Built:      %s\n", Date)
		_, _ = fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")

	rootCmd.PersistentFlags().String("server", "", "Server URL (default: $"+cmdutil.EnvServer+" or "+cmdutil.DefaultServer+")")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modulecmd.Cmd)
	rootCmd.AddCommand(opcodecmd.Cmd)
	rootCmd.AddCommand(keycmd.Cmd)
	rootCmd.AddCommand(bdevcmd.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
