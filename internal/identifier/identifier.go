// Package identifier maps human readable registry keys onto the bytes32 values
// the registry contracts use as mapping keys. The encoding matches Solidity's
// bytes32("name") literal: UTF-8 bytes, right-padded with zeros.
package identifier

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const Size = 32

var ErrTooLong = errors.New("identifier longer than 32 bytes")

// Well known registry identifiers.
const (
	PoolManager       = "poolManager"
	TvlManager        = "tvlManager"
	OracleAdapter     = "oracleAdapter"
	LpSafe            = "lpSafe"
	AdminSafe         = "adminSafe"
	EmergencySafe     = "emergencySafe"
	MApt              = "mApt"
	LpAccount         = "lpAccount"
	Erc20Allocation   = "erc20Allocation"
	DaiPool           = "daiPool"
	UsdcPool          = "usdcPool"
	UsdtPool          = "usdtPool"
	ChainlinkRegistry = "chainlinkRegistry"
)

// Encode returns the bytes32 identifier for name.
func Encode(name string) ([Size]byte, error) {
	var id [Size]byte

	raw := []byte(name)
	if len(raw) > Size {
		return id, fmt.Errorf("%w: %q is %d bytes", ErrTooLong, name, len(raw))
	}

	copy(id[:], common.RightPadBytes(raw, Size))

	return id, nil
}

// MustEncode is Encode for compile-time constant names.
func MustEncode(name string) [Size]byte {
	id, err := Encode(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Decode strips the zero padding. Identifiers that were not produced from a
// string come back with their non-printable bytes intact.
func Decode(id [Size]byte) string {
	return string(bytes.TrimRight(id[:], "\x00"))
}

// Hex renders the identifier the way block explorers show bytes32 values.
func Hex(id [Size]byte) string {
	return common.Hash(id).Hex()
}
