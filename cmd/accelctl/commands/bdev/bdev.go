// Package bdev implements "accelctl bdev".
package bdev

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Cmd is the parent command.
var Cmd = &cobra.Command{
	Use:     "bdev",
	Aliases: []string{"bdevs"},
	Short:   "Manage block devices",
}

var cryptoCmd = &cobra.Command{
	Use:   "crypto",
	Short: "Manage crypto bdevs",
}

func init() {
	cryptoCmd.AddCommand(cryptoCreateCmd)
	cryptoCmd.AddCommand(cryptoDeleteCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(cryptoCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List block devices",
	Long: `List every block device sorted by name. A claimed device is the base
of a crypto bdev.

Examples:
  accelctl bdev list
  accelctl bdev list -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bdevs, err := cmdutil.GetClient().ListBdevs()
		if err != nil {
			return cmdutil.Describe("list bdevs", err)
		}
		return cmdutil.PrintOutput(cmd.OutOrStdout(), bdevs, len(bdevs) == 0, "No bdevs found.", BdevList(bdevs))
	},
}

// BdevList renders bdevs as a table.
type BdevList []apiclient.Bdev

func (l BdevList) Headers() []string {
	return []string{"NAME", "PRODUCT", "BLOCK SIZE", "BLOCKS", "SIZE", "CLAIMED BY"}
}

func (l BdevList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, b := range l {
		rows = append(rows, []string{
			b.Name,
			b.ProductName,
			fmt.Sprint(b.BlockSize),
			humanize.Comma(int64(b.NumBlocks)),
			humanize.IBytes(uint64(b.BlockSize) * b.NumBlocks),
			cmdutil.EmptyOr(b.ClaimedBy, "-"),
		})
	}
	return rows
}
