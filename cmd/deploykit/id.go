package main

import (
	"fmt"

	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Convert between names and bytes32 registry identifiers",
}

var idEncodeCmd = &cobra.Command{
	Use:   "encode <name>",
	Short: "Print the bytes32 identifier of a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identifier.Encode(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), identifier.Hex(id))
		return nil
	},
}

var idDecodeCmd = &cobra.Command{
	Use:   "decode <0x-identifier>",
	Short: "Print the name held in a bytes32 identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid identifier: %w", err)
		}
		if len(raw) != identifier.Size {
			return fmt.Errorf("identifier must be %d bytes, got %d", identifier.Size, len(raw))
		}

		fmt.Fprintln(cmd.OutOrStdout(), identifier.Decode([identifier.Size]byte(raw)))
		return nil
	},
}

func init() {
	idCmd.AddCommand(idEncodeCmd)
	idCmd.AddCommand(idDecodeCmd)
}
