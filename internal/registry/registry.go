// Package registry resolves and registers protocol contract addresses through
// the on-chain Address Registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
)

// MissingAddressReason is the revert string of getAddress for an unknown id.
const MissingAddressReason = "Missing address"

var (
	funcGetAddress                = w3.MustNewFunc("getAddress(bytes32)", "address")
	funcGetIds                    = w3.MustNewFunc("getIds()", "bytes32[]")
	funcRegisterAddress           = w3.MustNewFunc("registerAddress(bytes32,address)", "")
	funcRegisterMultipleAddresses = w3.MustNewFunc("registerMultipleAddresses(bytes32[],address[])", "")
	funcDeleteAddress             = w3.MustNewFunc("deleteAddress(bytes32)", "")
)

// ErrReadOnly is returned by write operations on a client built without a sender.
var ErrReadOnly = errors.New("registry client is read-only")

type (
	Caller interface {
		CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}

	// Sender submits a transaction and returns its confirmed receipt.
	Sender interface {
		Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
	}

	Client struct {
		address common.Address
		caller  Caller
		sender  Sender
		logger  *slog.Logger
	}

	// MissingAddressError is returned when the registry has nothing stored for
	// an id: getAddress reverted, or it returned the zero address.
	MissingAddressError struct {
		ID     [identifier.Size]byte
		Reason string
	}
)

func (e *MissingAddressError) Error() string {
	return fmt.Sprintf("registry lookup of %q failed: %s", identifier.Decode(e.ID), e.Reason)
}

// New returns a client for the registry at address. sender may be nil for
// a read-only client.
func New(address common.Address, caller Caller, sender Sender, log *slog.Logger) *Client {
	return &Client{
		address: address,
		caller:  caller,
		sender:  sender,
		logger:  logger.Named(log, "registry").With("registry", address.Hex()),
	}
}

func (c *Client) Address() common.Address {
	return c.address
}

// Resolve returns the address registered under id.
func (c *Client) Resolve(ctx context.Context, id [identifier.Size]byte) (common.Address, error) {
	data, err := funcGetAddress.EncodeArgs(id)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to encode getAddress: %w", err)
	}

	out, err := c.call(ctx, data)
	if err != nil {
		if reason, ok := revertReason(err); ok && reason == MissingAddressReason {
			return common.Address{}, &MissingAddressError{ID: id, Reason: reason}
		}
		return common.Address{}, fmt.Errorf("failed to resolve %q: %w", identifier.Decode(id), err)
	}

	var address common.Address
	if err := funcGetAddress.DecodeReturns(out, &address); err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getAddress result: %w", err)
	}
	if address == (common.Address{}) {
		return common.Address{}, &MissingAddressError{ID: id, Reason: MissingAddressReason + " (zero address registered)"}
	}

	return address, nil
}

// ResolveNamed encodes name and resolves it.
func (c *Client) ResolveNamed(ctx context.Context, name string) (common.Address, error) {
	id, err := identifier.Encode(name)
	if err != nil {
		return common.Address{}, err
	}
	return c.Resolve(ctx, id)
}

// IDs lists every identifier the registry holds, in registration order.
func (c *Client) IDs(ctx context.Context) ([][identifier.Size]byte, error) {
	data, err := funcGetIds.EncodeArgs()
	if err != nil {
		return nil, fmt.Errorf("failed to encode getIds: %w", err)
	}

	out, err := c.call(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry ids: %w", err)
	}

	var ids [][identifier.Size]byte
	if err := funcGetIds.DecodeReturns(out, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode getIds result: %w", err)
	}

	return ids, nil
}

// Register stores address under id.
func (c *Client) Register(ctx context.Context, id [identifier.Size]byte, address common.Address) (*types.Receipt, error) {
	data, err := funcRegisterAddress.EncodeArgs(id, address)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registerAddress: %w", err)
	}

	receipt, err := c.transact(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to register %q: %w", identifier.Decode(id), err)
	}

	c.logger.
		With("id", identifier.Decode(id)).
		With("address", address.Hex()).
		Info("address registered")

	return receipt, nil
}

// RegisterMany stores addresses[i] under ids[i] in one transaction.
func (c *Client) RegisterMany(ctx context.Context, ids [][identifier.Size]byte, addresses []common.Address) (*types.Receipt, error) {
	if len(ids) != len(addresses) {
		return nil, fmt.Errorf("got %d ids and %d addresses", len(ids), len(addresses))
	}
	if len(ids) == 0 {
		return nil, errors.New("nothing to register")
	}

	data, err := funcRegisterMultipleAddresses.EncodeArgs(ids, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registerMultipleAddresses: %w", err)
	}

	receipt, err := c.transact(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to register %d addresses: %w", len(ids), err)
	}

	c.logger.With("count", len(ids)).Info("addresses registered")

	return receipt, nil
}

// Delete removes id from the registry.
func (c *Client) Delete(ctx context.Context, id [identifier.Size]byte) (*types.Receipt, error) {
	data, err := funcDeleteAddress.EncodeArgs(id)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deleteAddress: %w", err)
	}

	receipt, err := c.transact(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %q: %w", identifier.Decode(id), err)
	}

	c.logger.With("id", identifier.Decode(id)).Info("address deleted")

	return receipt, nil
}

// RegisterCalldata encodes registerAddress for callers that submit it
// through a multisig instead of directly.
func RegisterCalldata(id [identifier.Size]byte, address common.Address) ([]byte, error) {
	return funcRegisterAddress.EncodeArgs(id, address)
}

func (c *Client) call(ctx context.Context, data []byte) ([]byte, error) {
	to := c.address
	return c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *Client) transact(ctx context.Context, data []byte) (*types.Receipt, error) {
	if c.sender == nil {
		return nil, ErrReadOnly
	}
	return c.sender.Transact(ctx, c.address, data)
}

const revertPrefix = "execution reverted: "

// revertReason extracts the Error(string) reason from a failed call. Nodes
// attach the raw revert data to the JSON-RPC error; when they do not, the
// reason is taken from the message.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, revertPrefix); i >= 0 {
		return msg[i+len(revertPrefix):], true
	}

	return "", false
}
