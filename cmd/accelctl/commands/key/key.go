// Package key implements "accelctl key".
package key

import (
	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Cmd is the parent command.
var Cmd = &cobra.Command{
	Use:     "key",
	Aliases: []string{"keys"},
	Short:   "Manage crypto keys",
	Long: `Manage the crypto keyring of the framework. Key material is never
returned by list; use "accelctl config dump" to export it.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(deleteCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List crypto keys",
	Long: `List crypto keys in creation order.

Examples:
  accelctl key list
  accelctl key list -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := cmdutil.GetClient().ListCryptoKeys()
		if err != nil {
			return cmdutil.Describe("list crypto keys", err)
		}
		return cmdutil.PrintOutput(cmd.OutOrStdout(), keys, len(keys) == 0, "No crypto keys found.", KeyList(keys))
	},
}

// KeyList renders keys as a table.
type KeyList []apiclient.CryptoKey

func (l KeyList) Headers() []string {
	return []string{"NAME", "CIPHER", "MODULE", "DRIVER", "KEY2"}
}

func (l KeyList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, k := range l {
		rows = append(rows, []string{k.Name, k.Cipher, k.Module, cmdutil.EmptyOr(k.Driver, "-"), cmdutil.BoolToYesNo(k.HasKey2)})
	}
	return rows
}
