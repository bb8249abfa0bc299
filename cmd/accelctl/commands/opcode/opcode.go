// Package opcode implements "accelctl opcode".
package opcode

import (
	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Cmd is the parent command.
var Cmd = &cobra.Command{
	Use:     "opcode",
	Aliases: []string{"opcodes", "opc"},
	Short:   "Inspect opcode assignments",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show which module serves each opcode",
	Long: `Show the opcode table of a started framework. Opcodes pinned with an
override are marked.

Examples:
  accelctl opcode list
  accelctl opcode list -o yaml`,
	RunE: runList,
}

func init() {
	Cmd.AddCommand(listCmd)
}

// AssignmentList renders assignments as a table.
type AssignmentList []apiclient.Assignment

func (l AssignmentList) Headers() []string {
	return []string{"OPCODE", "MODULE", "OVERRIDE"}
}

func (l AssignmentList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, a := range l {
		rows = append(rows, []string{a.Opcode, cmdutil.EmptyOr(a.Module, "-"), cmdutil.BoolToYesNo(a.Override)})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	asg, err := cmdutil.GetClient().ListAssignments()
	if err != nil {
		return cmdutil.Describe("list opcode assignments", err)
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), asg, len(asg) == 0, "No opcodes assigned.", AssignmentList(asg))
}
