package key

import (
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/internal/cli/prompt"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Ciphers offered by the interactive prompt.
var Ciphers = []string{"AES_CBC", "AES_XTS"}

var (
	createCipher string
	createKey    string
	createKey2   string
	createDriver string
	createModule string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a crypto key",
	Long: `Create a crypto key. Keys are hex encoded: 16 bytes for AES-128, 32
bytes for AES-256. AES_XTS also needs --key2 of the same size.

Missing values are prompted for when stdin is a terminal; key material is
read with masked input.

Examples:
  accelctl key create k0 --cipher AES_CBC --key 00112233445566778899aabbccddeeff
  accelctl key create k1 --cipher AES_XTS --key <hex> --key2 <hex> --module software
  accelctl key create k2`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createCipher, "cipher", "", "Cipher (AES_CBC|AES_XTS)")
	createCmd.Flags().StringVar(&createKey, "key", "", "Hex encoded key")
	createCmd.Flags().StringVar(&createKey2, "key2", "", "Hex encoded tweak key (AES_XTS)")
	createCmd.Flags().StringVar(&createDriver, "driver", "", "Crypto driver name recorded with the key")
	createCmd.Flags().StringVar(&createModule, "module", "", "Module owning the key (default: the module assigned to encrypt)")
}

func runCreate(cmd *cobra.Command, args []string) error {
	req := &apiclient.CreateCryptoKeyRequest{
		Name:   args[0],
		Cipher: strings.ToUpper(createCipher),
		Key:    createKey,
		Key2:   createKey2,
		Driver: createDriver,
		Module: createModule,
	}
	if err := fillInteractively(req); err != nil {
		return cmdutil.HandleAbort(cmd.OutOrStdout(), err)
	}

	key, err := cmdutil.GetClient().CreateCryptoKey(req)
	if err != nil {
		return cmdutil.Describe("create crypto key", err)
	}
	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(), key,
		fmt.Sprintf("Crypto key '%s' created (%s, module %s)", key.Name, key.Cipher, key.Module))
}

// fillInteractively prompts for missing fields. Without a terminal the
// request goes out as is and the server reports what is missing.
func fillInteractively(req *apiclient.CreateCryptoKeyRequest) error {
	if !isTerminal() {
		return nil
	}
	var err error
	if req.Cipher == "" {
		if req.Cipher, err = prompt.SelectString("Cipher", Ciphers); err != nil {
			return err
		}
	}
	if req.Key == "" {
		if req.Key, err = prompt.HexKey("Key (hex)", false); err != nil {
			return err
		}
	}
	if req.Cipher == "AES_XTS" && req.Key2 == "" {
		if req.Key2, err = prompt.HexKey("Key2 (hex)", false); err != nil {
			return err
		}
	}
	return nil
}

func isTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
