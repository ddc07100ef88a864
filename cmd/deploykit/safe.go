package main

import (
	"fmt"
	"strings"

	"github.com/compose-network/deploykit/configs"
	"github.com/compose-network/deploykit/internal/safe"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var safeCmd = &cobra.Command{
	Use:   "safe",
	Short: "Follow Safe multisig transactions through the transaction service",
}

var safeStatusCmd = &cobra.Command{
	Use:   "status <safeTxHash>",
	Short: "Show the confirmations and execution state of a Safe transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := parseHash(args[0])
		if err != nil {
			return err
		}

		service, err := safeService()
		if err != nil {
			return err
		}

		tx, err := service.Transaction(cmd.Context(), hash)
		if err != nil {
			return err
		}

		owners := make([]string, len(tx.Confirmations))
		for i, c := range tx.Confirmations {
			owners[i] = c.Owner.Hex()
		}

		executed := ""
		if tx.TransactionHash != nil {
			executed = tx.TransactionHash.Hex()
		}

		successful := ""
		if tx.IsSuccessful != nil {
			successful = fmt.Sprint(*tx.IsSuccessful)
		}

		printKV(cmd.OutOrStdout(), []string{
			"Safe | " + tx.Safe.Hex(),
			"To | " + tx.To.Hex(),
			fmt.Sprintf("Nonce | %d", tx.Nonce),
			fmt.Sprintf("Confirmations | %d of %d", len(tx.Confirmations), tx.ConfirmationsRequired),
			"Confirmed by | " + strings.Join(owners, ", "),
			fmt.Sprintf("Executed | %t", tx.IsExecuted),
			"Successful | " + successful,
			"Transaction | " + executed,
		})
		return nil
	},
}

var safeWaitCmd = &cobra.Command{
	Use:   "wait <safeTxHash>",
	Short: "Wait until a Safe transaction is executed, bounded by safe.timeout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := parseHash(args[0])
		if err != nil {
			return err
		}

		service, err := safeService()
		if err != nil {
			return err
		}

		result, err := newPoller(service).Wait(cmd.Context(), hash)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.TransactionHash.Hex())
		return nil
	},
}

var safeInfoCmd = &cobra.Command{
	Use:   "info <safe>",
	Short: "Show the owners and threshold of a Safe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := resolveAddress(openStore(), networkName(), args[0])
		if err != nil {
			return err
		}

		service, err := safeService()
		if err != nil {
			return err
		}

		info, err := service.SafeInfo(cmd.Context(), address)
		if err != nil {
			return err
		}

		owners := make([]string, len(info.Owners))
		for i, o := range info.Owners {
			owners[i] = o.Hex()
		}

		printKV(cmd.OutOrStdout(), []string{
			"Address | " + info.Address.Hex(),
			"Version | " + info.Version,
			fmt.Sprintf("Nonce | %d", info.Nonce),
			fmt.Sprintf("Threshold | %d of %d", info.Threshold, len(info.Owners)),
			"Owners | " + strings.Join(owners, ", "),
		})
		return nil
	},
}

func safeService() (*safe.Client, error) {
	netCfg, err := configs.Values.Network(networkName())
	if err != nil {
		return nil, err
	}
	if netCfg.SafeServiceURL == "" {
		return nil, fmt.Errorf("networks.%s.safe-service-url is not set", strings.ToLower(networkName()))
	}

	return safe.NewClient(netCfg.SafeServiceURL, configs.Values.Safe.RequestTimeout, appLogger), nil
}

func newPoller(service *safe.Client) *safe.Poller {
	return safe.NewPoller(service, safe.PollerOptions{
		Interval:    configs.Values.Safe.PollInterval,
		MaxInterval: configs.Values.Safe.MaxPollInterval,
		Timeout:     configs.Values.Safe.Timeout,
	}, appLogger)
}

func parseHash(s string) (common.Hash, error) {
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	return common.BytesToHash(raw), nil
}

func init() {
	safeCmd.AddCommand(safeStatusCmd)
	safeCmd.AddCommand(safeWaitCmd)
	safeCmd.AddCommand(safeInfoCmd)
}
