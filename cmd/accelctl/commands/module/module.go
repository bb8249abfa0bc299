// Package module implements "accelctl module".
package module

import (
	"strings"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Cmd is the parent command.
var Cmd = &cobra.Command{
	Use:     "module",
	Aliases: []string{"modules"},
	Short:   "Inspect acceleration modules",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered modules and the opcodes they support",
	Long: `List the registered modules in registration order.

Examples:
  accelctl module list
  accelctl module list -o json`,
	RunE: runList,
}

func init() {
	Cmd.AddCommand(listCmd)
}

// ModuleList renders modules as a table.
type ModuleList []apiclient.Module

func (l ModuleList) Headers() []string {
	return []string{"MODULE", "OPCODES"}
}

func (l ModuleList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, m := range l {
		rows = append(rows, []string{m.Name, cmdutil.EmptyOr(strings.Join(m.Opcodes, ", "), "-")})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	mods, err := cmdutil.GetClient().ListModules()
	if err != nil {
		return cmdutil.Describe("list modules", err)
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), mods, len(mods) == 0, "No modules registered.", ModuleList(mods))
}
