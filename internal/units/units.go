// Package units converts between human readable token amounts and the integer
// base units contracts operate on.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EtherDecimals uint8 = 18
	GweiDecimals  uint8 = 9
)

var (
	ErrPrecision = errors.New("amount has more fractional digits than the token supports")
	ErrNegative  = errors.New("amount must not be negative")
)

// ParseUnits converts a decimal amount such as "1.5" into base units for a
// token with the given decimals. Negative amounts and amounts that would need
// rounding are rejected.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.ReplaceAll(strings.TrimSpace(amount), "_", "")
	if amount == "" {
		return nil, errors.New("empty amount")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegative, amount)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrPrecision, amount, decimals)
	}

	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a decimal amount without trailing zeros.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}

	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, EtherDecimals)
}

func FormatEther(value *big.Int) string {
	return FormatUnits(value, EtherDecimals)
}

// ParseGwei is used for gas price flags.
func ParseGwei(amount string) (*big.Int, error) {
	return ParseUnits(amount, GweiDecimals)
}

// Rescale converts an amount between two decimal precisions, e.g. a USDC (6)
// amount into an 18-decimal accounting value. Scaling down truncates.
func Rescale(value *big.Int, from, to uint8) *big.Int {
	if value == nil {
		return new(big.Int)
	}

	return decimal.NewFromBigInt(value, 0).Shift(int32(to) - int32(from)).Truncate(0).BigInt()
}
