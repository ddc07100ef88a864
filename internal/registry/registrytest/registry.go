// Package registrytest provides an in-memory Address Registry that answers
// the registry ABI the way the deployed contract does.
package registrytest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

var (
	funcGetAddress                = w3.MustNewFunc("getAddress(bytes32)", "address")
	funcGetIds                    = w3.MustNewFunc("getIds()", "bytes32[]")
	funcRegisterAddress           = w3.MustNewFunc("registerAddress(bytes32,address)", "")
	funcRegisterMultipleAddresses = w3.MustNewFunc("registerMultipleAddresses(bytes32[],address[])", "")
	funcDeleteAddress             = w3.MustNewFunc("deleteAddress(bytes32)", "")

	revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	stringArgs     = abi.Arguments{{Type: mustType("string")}}
)

type (
	Registry struct {
		mu        sync.Mutex
		address   common.Address
		ids       [][32]byte
		addresses map[[32]byte]common.Address
		block     uint64
	}

	// RevertError mimics the JSON-RPC error a node returns for a reverted call.
	RevertError struct {
		Reason string
	}
)

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) ErrorCode() int {
	return 3
}

func (e *RevertError) ErrorData() interface{} {
	packed, _ := stringArgs.Pack(e.Reason)
	return hexutil.Encode(append(append([]byte{}, revertSelector...), packed...))
}

func New(address common.Address) *Registry {
	return &Registry{
		address:   address,
		addresses: make(map[[32]byte]common.Address),
	}
}

func (r *Registry) Address() common.Address {
	return r.address
}

// Set registers an entry without going through a transaction.
func (r *Registry) Set(id [32]byte, address common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(id, address)
}

func (r *Registry) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || *msg.To != r.address {
		return nil, fmt.Errorf("no contract at %v", msg.To)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case hasSelector(msg.Data, funcGetAddress):
		var id [32]byte
		if err := funcGetAddress.DecodeArgs(msg.Data, &id); err != nil {
			return nil, err
		}
		address, ok := r.addresses[id]
		if !ok {
			return nil, &RevertError{Reason: "Missing address"}
		}
		return funcGetAddress.Returns.Pack(address)
	case hasSelector(msg.Data, funcGetIds):
		ids := append([][32]byte{}, r.ids...)
		return funcGetIds.Returns.Pack(ids)
	default:
		return nil, &RevertError{Reason: "unknown function"}
	}
}

// Transact applies a registry write and returns a successful receipt.
func (r *Registry) Transact(_ context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	if to != r.address {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case hasSelector(data, funcRegisterAddress):
		var (
			id      [32]byte
			address common.Address
		)
		if err := funcRegisterAddress.DecodeArgs(data, &id, &address); err != nil {
			return nil, err
		}
		if address == (common.Address{}) {
			return nil, &RevertError{Reason: "Invalid address"}
		}
		r.register(id, address)
	case hasSelector(data, funcRegisterMultipleAddresses):
		var (
			ids       [][32]byte
			addresses []common.Address
		)
		if err := funcRegisterMultipleAddresses.DecodeArgs(data, &ids, &addresses); err != nil {
			return nil, err
		}
		if len(ids) != len(addresses) {
			return nil, &RevertError{Reason: "Inputs have differing length"}
		}
		for i := range ids {
			r.register(ids[i], addresses[i])
		}
	case hasSelector(data, funcDeleteAddress):
		var id [32]byte
		if err := funcDeleteAddress.DecodeArgs(data, &id); err != nil {
			return nil, err
		}
		if _, ok := r.addresses[id]; !ok {
			return nil, &RevertError{Reason: "Missing address"}
		}
		r.delete(id)
	default:
		return nil, errors.New("unknown registry function")
	}

	r.block++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: new(big.Int).SetUint64(r.block)}, nil
}

func (r *Registry) register(id [32]byte, address common.Address) {
	if _, ok := r.addresses[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.addresses[id] = address
}

func (r *Registry) delete(id [32]byte) {
	delete(r.addresses, id)
	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
}

func hasSelector(data []byte, fn *w3.Func) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], fn.Selector[:])
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}
