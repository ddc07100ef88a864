// Package signer loads the signing key of a deployment role from the
// environment. A role is configured with either <ROLE>_PRIVATE_KEY or
// <ROLE>_MNEMONIC (plus an optional <ROLE>_MNEMONIC_INDEX).
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// ErrMissingCredential means neither a private key nor a mnemonic is set for a role.
var ErrMissingCredential = errors.New("missing signer credential")

// LookupEnv matches os.LookupEnv; tests swap it for a map.
type LookupEnv func(key string) (string, bool)

type Key struct {
	Role    string
	Private *ecdsa.PrivateKey
	Address common.Address
}

// FromEnv resolves the key for role using the process environment.
func FromEnv(role string) (Key, error) {
	return Resolve(role, os.LookupEnv)
}

// Resolve resolves the key for role. The private key wins when both are set.
func Resolve(role string, lookup LookupEnv) (Key, error) {
	prefix := envPrefix(role)
	if prefix == "" {
		return Key{}, errors.New("signer role is required")
	}

	if raw, ok := lookup(prefix + "_PRIVATE_KEY"); ok && strings.TrimSpace(raw) != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
		if err != nil {
			return Key{}, fmt.Errorf("invalid %s_PRIVATE_KEY: %w", prefix, err)
		}
		return newKey(prefix, key), nil
	}

	if mnemonic, ok := lookup(prefix + "_MNEMONIC"); ok && strings.TrimSpace(mnemonic) != "" {
		var index uint32
		if raw, ok := lookup(prefix + "_MNEMONIC_INDEX"); ok && raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 31)
			if err != nil {
				return Key{}, fmt.Errorf("invalid %s_MNEMONIC_INDEX: %w", prefix, err)
			}
			index = uint32(parsed)
		}

		key, err := FromMnemonic(mnemonic, index)
		if err != nil {
			return Key{}, fmt.Errorf("%s_MNEMONIC: %w", prefix, err)
		}
		return newKey(prefix, key), nil
	}

	return Key{}, fmt.Errorf("%w: set %s_PRIVATE_KEY or %s_MNEMONIC", ErrMissingCredential, prefix, prefix)
}

// FromMnemonic derives m/44'/60'/0'/0/index from a BIP-39 mnemonic.
func FromMnemonic(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	// the network params only affect serialization, not derivation
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}

	child := master
	for _, i := range path {
		child, err = child.Derive(i)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", i, err)
		}
	}

	var priv *btcec.PrivateKey
	priv, err = child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}

	return priv.ToECDSA(), nil
}

func newKey(role string, key *ecdsa.PrivateKey) Key {
	return Key{Role: role, Private: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

func envPrefix(role string) string {
	role = strings.TrimSpace(role)
	role = strings.NewReplacer("-", "_", " ", "_").Replace(role)
	return strings.ToUpper(role)
}
