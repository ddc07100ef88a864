package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/compose-network/deploykit/internal/addresses"
	"github.com/compose-network/deploykit/internal/contracts"
	fsjson "github.com/compose-network/deploykit/internal/infra/filesystem/json"
	"github.com/compose-network/deploykit/internal/journal"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/registry/registrytest"
	"github.com/compose-network/deploykit/internal/safe"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type deployment struct {
	id      contracts.ID
	address common.Address
	args    []any
}

// fakeChain deploys to CREATE addresses of the deployer, emulates Ownable
// and routes registry proxies to an in-memory registry.
type fakeChain struct {
	nonce      uint64
	deployed   []deployment
	sent       [][]byte
	owners     map[common.Address]common.Address
	registries map[common.Address]*registrytest.Registry
	failDeploy map[contracts.ID]error
	// ignoreTransfers keeps the old owner in place to simulate a silent no-op.
	ignoreTransfers bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		owners:     make(map[common.Address]common.Address),
		registries: make(map[common.Address]*registrytest.Registry),
		failDeploy: make(map[contracts.ID]error),
	}
}

func (f *fakeChain) From() common.Address {
	return deployer
}

func (f *fakeChain) Deploy(_ context.Context, artifact contracts.Artifact, args ...any) (common.Address, *types.Receipt, error) {
	if err := f.failDeploy[artifact.ID]; err != nil {
		return common.Address{}, nil, err
	}

	address := crypto.CreateAddress(deployer, f.nonce)
	f.nonce++

	f.deployed = append(f.deployed, deployment{id: artifact.ID, address: address, args: args})
	f.owners[address] = deployer

	if artifact.ID == contracts.IDTransparentUpgradeableProxy {
		logic := args[0].(common.Address)
		if f.isRegistryLogic(logic) {
			f.registries[address] = registrytest.New(address)
		}
	}

	return address, f.receipt(), nil
}

func (f *fakeChain) Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	f.sent = append(f.sent, data)

	if bytes.HasPrefix(data, funcTransferOwnership.Selector[:]) {
		var newOwner common.Address
		if err := funcTransferOwnership.DecodeArgs(data, &newOwner); err != nil {
			return nil, err
		}
		if !f.ignoreTransfers {
			f.owners[to] = newOwner
		}
		return f.receipt(), nil
	}

	if reg, ok := f.registries[to]; ok {
		if _, err := reg.Transact(ctx, to, data); err != nil {
			return nil, err
		}
	}

	return f.receipt(), nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, errors.New("call without target")
	}

	if bytes.HasPrefix(msg.Data, funcOwner.Selector[:]) {
		return funcOwner.Returns.Pack(f.owners[*msg.To])
	}

	if reg, ok := f.registries[*msg.To]; ok {
		return reg.CallContract(ctx, msg, block)
	}

	return nil, fmt.Errorf("no contract at %s", msg.To.Hex())
}

func (f *fakeChain) deployedIDs() []contracts.ID {
	ids := make([]contracts.ID, len(f.deployed))
	for i, d := range f.deployed {
		ids[i] = d.id
	}
	return ids
}

func (f *fakeChain) isRegistryLogic(address common.Address) bool {
	for _, d := range f.deployed {
		if d.address == address && d.id == contracts.IDAddressRegistryV2 {
			return true
		}
	}
	return false
}

func (f *fakeChain) receipt() *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      crypto.Keccak256Hash(new(big.Int).SetUint64(f.nonce).Bytes(), big.NewInt(int64(len(f.sent))).Bytes()),
		BlockNumber: new(big.Int).SetUint64(f.nonce),
	}
}

type fakeSafe struct {
	proposed []safe.Call
	executed common.Hash
	err      error
}

func (f *fakeSafe) Propose(_ context.Context, _ common.Address, call safe.Call) (common.Hash, error) {
	f.proposed = append(f.proposed, call)
	return common.HexToHash("0x5afe"), nil
}

func (f *fakeSafe) Wait(context.Context, common.Hash) (safe.ExecutionResult, error) {
	if f.err != nil {
		return safe.ExecutionResult{}, f.err
	}
	return safe.ExecutionResult{SafeTxHash: common.HexToHash("0x5afe"), TransactionHash: f.executed}, nil
}

type harness struct {
	store     *addresses.Store
	journal   *journal.Journal
	artifacts contracts.Set
}

func newHarness(t *testing.T) harness {
	t.Helper()

	dir := t.TempDir()

	j, err := journal.Open(filepath.Join(dir, "journal.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	artifacts, err := contracts.Load("")
	require.NoError(t, err)

	return harness{
		store:     addresses.NewStore(dir, fsjson.NewReader(), fsjson.NewWriter(), logger.Discard()),
		journal:   j,
		artifacts: artifacts,
	}
}

func (h harness) sequencer(chain Chain) *Sequencer {
	return NewSequencer("mainnet", chain, h.artifacts, h.store, h.journal, logger.Discard())
}
