package key

import (
	"fmt"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Destroy a crypto key",
	Long: `Destroy a crypto key. The key material is wiped on the server.

Examples:
  accelctl key delete k0
  accelctl key delete k0 --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := cmdutil.GetClient()
		return cmdutil.RunDeleteWithConfirmation(cmd.OutOrStdout(), "Crypto key", name, deleteForce, func() error {
			if err := client.DeleteCryptoKey(name); err != nil {
				if apiErr, ok := err.(*apiclient.APIError); ok && apiErr.IsNotFound() {
					return fmt.Errorf("crypto key '%s' not found", name)
				}
				return cmdutil.Describe("delete crypto key", err)
			}
			return nil
		})
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}
