package main

import (
	"fmt"
	"strings"

	"github.com/compose-network/deploykit/configs"
	"github.com/compose-network/deploykit/internal/fork"
	"github.com/compose-network/deploykit/internal/networks"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/spf13/cobra"
)

var (
	forkChainID   uint64
	forkLoadState string
	forkRestore   bool
	forkSaveState bool
	forkRPCURL    string
)

var forkCmd = &cobra.Command{
	Use:   "fork",
	Short: "Run a local anvil fork of the selected network for testing",
}

var forkStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an anvil container forking the network at its pinned block",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := networkName()

		netCfg, err := configs.Values.Network(name)
		if err != nil {
			return err
		}

		forkBlock := netCfg.ForkBlock
		if forkBlock == 0 {
			if network, err := catalogNetwork(name); err == nil {
				forkBlock = network.ForkBlockNumber
			}
		}

		loadState := forkLoadState
		if forkRestore {
			loadState = fork.SavedStatePath(configs.Values.Fork.DumpDir, name)
		}

		docker, err := fork.NewDocker(appLogger)
		if err != nil {
			return err
		}
		defer docker.Close()

		instance, err := fork.NewNode(docker, appLogger).Start(cmd.Context(), fork.Options{
			Network:   name,
			ForkURL:   netCfg.RPCURL,
			ForkBlock: forkBlock,
			ChainID:   forkChainID,
			Image:     configs.Values.Fork.Image,
			Port:      configs.Values.Fork.Port,
			LoadState: loadState,
		})
		if err != nil {
			return err
		}

		printKV(cmd.OutOrStdout(), []string{
			"Container | " + instance.Name,
			"RPC | " + instance.RPCURL,
			fmt.Sprintf("Fork block | %d", forkBlock),
		})
		return nil
	},
}

var forkStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the network's fork, optionally saving its state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		docker, err := fork.NewDocker(appLogger)
		if err != nil {
			return err
		}
		defer docker.Close()

		dumpDir := ""
		if forkSaveState {
			dumpDir = configs.Values.Fork.DumpDir
		}

		return fork.NewNode(docker, appLogger).Stop(cmd.Context(), networkName(), dumpDir)
	},
}

var forkFundCmd = &cobra.Command{
	Use:   "fund <ETH|symbol> <address|key> <amount>",
	Short: "Give an account ether or stablecoins on the fork",
	Long: `Give an account ether or stablecoins on the fork. Ether is set directly;
stablecoins are transferred from the network's known holder, impersonated on
the fork. The amount is a decimal value in whole tokens.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := networkName()

		network, err := catalogNetwork(name)
		if err != nil {
			return err
		}

		to, err := resolveAddress(openStore(), name, args[1])
		if err != nil {
			return err
		}

		url := forkRPCURL
		if url == "" {
			url = fmt.Sprintf("http://127.0.0.1:%d", configs.Values.Fork.Port)
		}

		client, err := rpc.DialContext(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to connect to fork at %s: %w", url, err)
		}
		defer client.Close()

		funder := fork.NewFunder(client, network, appLogger)

		if strings.EqualFold(args[0], "ETH") {
			return funder.FundEther(ctx, to, args[2])
		}

		hash, err := funder.FundToken(ctx, args[0], to, args[2])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
		return nil
	},
}

func catalogNetwork(name string) (networks.Network, error) {
	catalog, err := networks.Default()
	if err != nil {
		return networks.Network{}, err
	}
	return catalog.Get(name)
}

func init() {
	forkStartCmd.Flags().Uint64Var(&forkChainID, "chain-id", 0, "Chain ID of the fork (default: the forked chain's)")
	forkStartCmd.Flags().StringVar(&forkLoadState, "load-state", "", "Host state file to start from")
	forkStartCmd.Flags().BoolVar(&forkRestore, "restore", false, "Start from the state saved by fork stop --save-state")
	forkStartCmd.MarkFlagsMutuallyExclusive("load-state", "restore")
	forkStopCmd.Flags().BoolVar(&forkSaveState, "save-state", false, "Copy anvil's state dump to fork.dump-dir")
	forkFundCmd.Flags().StringVar(&forkRPCURL, "rpc-url", "", "Fork RPC URL (default: http://127.0.0.1:<fork.port>)")

	forkCmd.AddCommand(forkStartCmd)
	forkCmd.AddCommand(forkStopCmd)
	forkCmd.AddCommand(forkFundCmd)
}
