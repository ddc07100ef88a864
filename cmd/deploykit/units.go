package main

import (
	"fmt"
	"math/big"

	"github.com/compose-network/deploykit/internal/units"
	"github.com/spf13/cobra"
)

var unitsDecimals uint8

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Convert between decimal amounts and base units",
}

var unitsParseCmd = &cobra.Command{
	Use:   "parse <amount>",
	Short: "Convert a decimal amount to base units, e.g. 1.5 -> 1500000000000000000",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := units.ParseUnits(args[0], unitsDecimals)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), value.String())
		return nil
	},
}

var unitsFormatCmd = &cobra.Command{
	Use:   "format <base-units>",
	Short: "Convert base units to a decimal amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, ok := new(big.Int).SetString(args[0], 0)
		if !ok {
			return fmt.Errorf("invalid integer %q", args[0])
		}

		fmt.Fprintln(cmd.OutOrStdout(), units.FormatUnits(value, unitsDecimals))
		return nil
	},
}

func init() {
	unitsCmd.PersistentFlags().Uint8Var(&unitsDecimals, "decimals", 18, "Token decimals")

	unitsCmd.AddCommand(unitsParseCmd)
	unitsCmd.AddCommand(unitsFormatCmd)
}
