package contracts

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

type (
	// ID names a contract artifact. Only the constants below are valid; code
	// refers to artifacts through them so a typo fails to compile.
	ID string

	Artifact struct {
		ID       ID
		ABI      abi.ABI
		RawABI   string
		Bytecode []byte
	}
)

const (
	IDProxyAdmin                  ID = "ProxyAdmin"
	IDTransparentUpgradeableProxy ID = "TransparentUpgradeableProxy"
	IDAddressRegistryV2           ID = "AddressRegistryV2"
	IDMetaPoolToken               ID = "MetaPoolToken"
	IDOracleAdapter               ID = "OracleAdapter"
	IDTvlManager                  ID = "TvlManager"
	IDLpAccount                   ID = "LpAccount"
	IDPoolTokenV2                 ID = "PoolTokenV2"
	IDErc20Allocation             ID = "Erc20Allocation"
)

var Contracts = map[ID]struct{}{
	IDProxyAdmin:                  {},
	IDTransparentUpgradeableProxy: {},
	IDAddressRegistryV2:           {},
	IDMetaPoolToken:               {},
	IDOracleAdapter:               {},
	IDTvlManager:                  {},
	IDLpAccount:                   {},
	IDPoolTokenV2:                 {},
	IDErc20Allocation:             {},
}

// ParseID validates a name coming from a flag or a manifest.
func ParseID(name string) (ID, error) {
	id := ID(name)
	if _, ok := Contracts[id]; !ok {
		return "", fmt.Errorf("unknown contract %q", name)
	}
	return id, nil
}

// IDs returns every known ID in a stable order.
func IDs() []ID {
	ids := make([]ID, 0, len(Contracts))
	for id := range Contracts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Deployable reports whether the artifact carries creation bytecode.
func (a Artifact) Deployable() error {
	if len(a.Bytecode) == 0 {
		return fmt.Errorf("artifact %s has no bytecode; run `deploykit compile` or pass --artifacts", a.ID)
	}
	return nil
}
