package main

import (
	"fmt"

	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/compose-network/deploykit/internal/registry"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	registryAddress  string
	registrySigner   string
	registryGasPrice string
	registryCalldata bool
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Query and update the on-chain Address Registry",
}

var registryResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Print the address registered under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		client, err := readOnlyRegistry(t)
		if err != nil {
			return err
		}

		address, err := client.ResolveNamed(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), address.Hex())
		return nil
	},
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered identifier with its address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		client, err := readOnlyRegistry(t)
		if err != nil {
			return err
		}

		ids, err := client.IDs(cmd.Context())
		if err != nil {
			return err
		}

		rows := []string{"NAME | ID | ADDRESS"}
		for _, id := range ids {
			address, err := client.Resolve(cmd.Context(), id)
			if err != nil {
				return err
			}
			rows = append(rows, fmt.Sprintf("%s | %s | %s", identifier.Decode(id), identifier.Hex(id), address.Hex()))
		}

		printList(cmd.OutOrStdout(), rows)
		return nil
	},
}

var registryRegisterCmd = &cobra.Command{
	Use:   "register <name> <address|key>",
	Short: "Register an address under a name",
	Long: `Register an address under a name. The address is a 0x literal or a key of
the address store. With --calldata the encoded call is printed instead of sent,
for submission through a multisig.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identifier.Encode(args[0])
		if err != nil {
			return err
		}

		store := openStore()
		address, err := resolveAddress(store, networkName(), args[1])
		if err != nil {
			return err
		}

		if registryCalldata {
			data, err := registry.RegisterCalldata(id, address)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(data))
			return nil
		}

		t, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer t.Close()

		registryAt, err := resolveAddress(store, t.name, registryAddress)
		if err != nil {
			return err
		}

		tx, _, err := t.transactor(cmd.Context(), registrySigner, registryGasPrice)
		if err != nil {
			return err
		}

		receipt, err := registry.New(registryAt, tx, tx, appLogger).Register(cmd.Context(), id, address)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), receipt.TxHash.Hex())
		return nil
	},
}

func readOnlyRegistry(t target) (*registry.Client, error) {
	address, err := resolveAddress(openStore(), t.name, registryAddress)
	if err != nil {
		return nil, err
	}
	return registry.New(address, t.client, nil, appLogger), nil
}

func init() {
	registryCmd.PersistentFlags().StringVar(&registryAddress, "registry", "AddressRegistryProxy", "Registry address or address-store key")

	registryRegisterCmd.Flags().StringVar(&registrySigner, "signer", "registry-deployer", "Role whose key sends the transaction")
	registryRegisterCmd.Flags().StringVar(&registryGasPrice, "gas-price", "", "Gas price in gwei")
	registryRegisterCmd.Flags().BoolVar(&registryCalldata, "calldata", false, "Print the encoded call instead of sending it")

	registryCmd.AddCommand(registryResolveCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryRegisterCmd)
}
