package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/compose-network/deploykit/configs"
	"github.com/compose-network/deploykit/internal/addresses"
	"github.com/compose-network/deploykit/internal/chain"
	"github.com/compose-network/deploykit/internal/contracts"
	fsjson "github.com/compose-network/deploykit/internal/infra/filesystem/json"
	"github.com/compose-network/deploykit/internal/networks"
	"github.com/compose-network/deploykit/internal/signer"
	"github.com/compose-network/deploykit/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// target is a connected network selected by --network or NETWORK.
type target struct {
	name   string
	config configs.Network
	client *ethclient.Client
}

func networkName() string {
	return networks.Canonical(configs.Values.DefaultNetwork)
}

func openStore() *addresses.Store {
	return addresses.NewStore(configs.Values.Paths.Deployments, fsjson.NewReader(), fsjson.NewWriter(), appLogger)
}

func loadArtifacts() (contracts.Set, error) {
	return contracts.Load(configs.Values.Paths.Artifacts)
}

// connect dials the selected network and checks it is the chain the config expects.
func connect(ctx context.Context) (target, error) {
	name := networkName()

	netCfg, err := configs.Values.Network(name)
	if err != nil {
		return target{}, err
	}

	client, err := chain.Dial(ctx, netCfg.RPCURL)
	if err != nil {
		return target{}, err
	}

	if netCfg.ChainID != 0 {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return target{}, fmt.Errorf("failed to read chain id: %w", err)
		}
		if chainID.Uint64() != netCfg.ChainID {
			client.Close()
			return target{}, fmt.Errorf("%s is configured as chain %d but the node reports %s", name, netCfg.ChainID, chainID)
		}
	}

	appLogger.With("network", name).With("rpc_url", netCfg.RPCURL).Debug("connected")

	return target{name: name, config: netCfg, client: client}, nil
}

func (t target) Close() {
	t.client.Close()
}

// transactor signs as role. gasPriceGwei overrides the network's configured price.
func (t target) transactor(ctx context.Context, role, gasPriceGwei string) (*chain.Transactor, signer.Key, error) {
	key, err := signer.FromEnv(role)
	if err != nil {
		return nil, signer.Key{}, err
	}

	if gasPriceGwei == "" {
		gasPriceGwei = t.config.GasPriceGwei
	}

	var gasPrice *big.Int
	if gasPriceGwei != "" {
		gasPrice, err = units.ParseGwei(gasPriceGwei)
		if err != nil {
			return nil, signer.Key{}, fmt.Errorf("invalid gas price: %w", err)
		}
	}

	tx, err := chain.NewTransactor(ctx, t.client, key.Private, chain.Options{
		Confirmations: t.config.Confirmations,
		GasLimit:      t.config.GasLimit,
		GasPrice:      gasPrice,
		Timeout:       t.config.TxTimeout,
	}, appLogger)
	if err != nil {
		return nil, signer.Key{}, err
	}

	return tx, key, nil
}

// resolveAddress accepts a 0x literal or an address-store key, optionally prefixed with @.
func resolveAddress(store *addresses.Store, network, expr string) (common.Address, error) {
	expr = strings.TrimSpace(expr)
	if common.IsHexAddress(expr) {
		return common.HexToAddress(expr), nil
	}
	return store.Get(strings.TrimPrefix(expr, "@"), network)
}
