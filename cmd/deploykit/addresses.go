package main

import (
	"fmt"
	"sort"

	"github.com/compose-network/deploykit/configs"
	fsjson "github.com/compose-network/deploykit/internal/infra/filesystem/json"
	"github.com/compose-network/deploykit/internal/output"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Read and write the deployed-address store of the selected network",
}

var addressesGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the stored address of a contract key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := openStore().Get(args[0], networkName())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), address.Hex())
		return nil
	},
}

var addressesSetCmd = &cobra.Command{
	Use:   "set <key> <address>",
	Short: "Store an address under a contract key, keeping every other key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[1]) {
			return fmt.Errorf("invalid address %q", args[1])
		}

		return openStore().Update(networkName(), map[string]common.Address{
			args[0]: common.HexToAddress(args[1]),
		})
	},
}

var addressesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := openStore().All(networkName())
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(all))
		for key := range all {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		rows := []string{"KEY | ADDRESS"}
		for _, key := range keys {
			rows = append(rows, fmt.Sprintf("%s | %s", key, all[key].Hex()))
		}

		printList(cmd.OutOrStdout(), rows)
		return nil
	},
}

var addressesExportOut string

var addressesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored addresses with their contract ABIs as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := networkName()

		all, err := openStore().All(name)
		if err != nil {
			return err
		}

		artifacts, err := loadArtifacts()
		if err != nil {
			return err
		}

		network := output.Network{Name: name}
		if netCfg, err := configs.Values.Network(name); err == nil {
			network.ChainID = netCfg.ChainID
			network.RPCURL = netCfg.RPCURL
		}

		data, err := output.Generate(network, all, artifacts)
		if err != nil {
			return err
		}

		if addressesExportOut == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		return fsjson.NewWriter().WriteBytes(addressesExportOut, data)
	},
}

func init() {
	addressesExportCmd.Flags().StringVar(&addressesExportOut, "out", "", "Output file (default: stdout)")

	addressesCmd.AddCommand(addressesExportCmd)
	addressesCmd.AddCommand(addressesGetCmd)
	addressesCmd.AddCommand(addressesSetCmd)
	addressesCmd.AddCommand(addressesListCmd)
}
