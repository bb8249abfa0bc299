package bdev

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

var createOpts struct {
	base     string
	keyName  string
	cipher   string
	key      string
	key2     string
	driver   string
	module   string
	channels int
}

var cryptoCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a crypto bdev over a base bdev",
	Long: `Create a crypto bdev that encrypts writes to and decrypts reads from
its base bdev. The base is claimed until the crypto bdev is deleted.

Either name an existing key with --key-name, or pass --cipher and --key
for a key owned by the device and destroyed with it.

Examples:
  accelctl bdev crypto create crypt0 --base Malloc0 --key-name k0
  accelctl bdev crypto create crypt1 --base Malloc1 --cipher AES_CBC --key 00112233445566778899aabbccddeeff`,
	Args: cobra.ExactArgs(1),
	RunE: runCryptoCreate,
}

func init() {
	f := cryptoCreateCmd.Flags()
	f.StringVar(&createOpts.base, "base", "", "Base bdev name (required)")
	f.StringVar(&createOpts.keyName, "key-name", "", "Existing crypto key")
	f.StringVar(&createOpts.cipher, "cipher", "", "Cipher of an inline key (AES_CBC|AES_XTS)")
	f.StringVar(&createOpts.key, "key", "", "Hex encoded inline key")
	f.StringVar(&createOpts.key2, "key2", "", "Hex encoded inline tweak key")
	f.StringVar(&createOpts.driver, "driver", "", "Crypto driver of an inline key")
	f.StringVar(&createOpts.module, "module", "", "Module of an inline key")
	f.IntVar(&createOpts.channels, "channels", 0, "I/O channels opened by the device (default: 1)")
	_ = cryptoCreateCmd.MarkFlagRequired("base")
	cryptoCreateCmd.MarkFlagsMutuallyExclusive("key-name", "key")
	cryptoCreateCmd.MarkFlagsOneRequired("key-name", "key")
}

func runCryptoCreate(cmd *cobra.Command, args []string) error {
	req := &apiclient.CreateCryptoBdevRequest{
		Name:     args[0],
		BaseBdev: createOpts.base,
		KeyName:  createOpts.keyName,
		Cipher:   strings.ToUpper(createOpts.cipher),
		Key:      createOpts.key,
		Key2:     createOpts.key2,
		Driver:   createOpts.driver,
		Module:   createOpts.module,
		Channels: createOpts.channels,
	}

	b, err := cmdutil.GetClient().CreateCryptoBdev(req)
	if err != nil {
		if apiErr, ok := err.(*apiclient.APIError); ok && apiErr.IsConflict() {
			return fmt.Errorf("cannot create crypto bdev '%s': %s", req.Name, apiErr.Detail)
		}
		return cmdutil.Describe("create crypto bdev", err)
	}
	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(), b,
		fmt.Sprintf("Crypto bdev '%s' created over '%s'", b.Name, req.BaseBdev))
}

var deleteForce bool

var cryptoDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a crypto bdev",
	Long: `Delete a crypto bdev and release its base. A key created inline with
the device is destroyed; a named key is kept.

Examples:
  accelctl bdev crypto delete crypt0 --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := cmdutil.GetClient()
		return cmdutil.RunDeleteWithConfirmation(cmd.OutOrStdout(), "Crypto bdev", name, deleteForce, func() error {
			if err := client.DeleteCryptoBdev(name); err != nil {
				if apiErr, ok := err.(*apiclient.APIError); ok && apiErr.IsNotFound() {
					return fmt.Errorf("crypto bdev '%s' not found", name)
				}
				return cmdutil.Describe("delete crypto bdev", err)
			}
			return nil
		})
	},
}

func init() {
	cryptoDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}
