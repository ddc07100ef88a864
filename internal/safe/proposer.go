package safe

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
)

const (
	OperationCall         uint8 = 0
	OperationDelegateCall uint8 = 1

	origin = "deploykit"
)

var (
	funcNonce              = w3.MustNewFunc("nonce()", "uint256")
	funcGetTransactionHash = w3.MustNewFunc(
		"getTransactionHash(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,uint256)", "bytes32",
	)
)

type (
	Caller interface {
		CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}

	proposalService interface {
		Propose(ctx context.Context, safe common.Address, proposal Proposal) error
	}

	// Proposer signs Safe transactions with one owner key and hands them to
	// the transaction service for the remaining owners to confirm.
	Proposer struct {
		caller  Caller
		service proposalService
		key     *ecdsa.PrivateKey
		owner   common.Address
		logger  *slog.Logger
	}

	Call struct {
		To        common.Address
		Value     *big.Int
		Data      []byte
		Operation uint8
	}
)

func NewProposer(caller Caller, service proposalService, key *ecdsa.PrivateKey, log *slog.Logger) *Proposer {
	owner := crypto.PubkeyToAddress(key.PublicKey)
	return &Proposer{
		caller:  caller,
		service: service,
		key:     key,
		owner:   owner,
		logger:  logger.Named(log, "safe-proposer").With("owner", owner.Hex()),
	}
}

// Propose proposes call to safe at the safe's current nonce and returns the
// safe transaction hash to wait on.
func (p *Proposer) Propose(ctx context.Context, safe common.Address, call Call) (common.Hash, error) {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := p.nonce(ctx, safe)
	if err != nil {
		return common.Hash{}, err
	}

	safeTxHash, err := p.transactionHash(ctx, safe, call, value, nonce)
	if err != nil {
		return common.Hash{}, err
	}

	signature, err := crypto.Sign(safeTxHash.Bytes(), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign safe transaction: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27

	proposal := Proposal{
		To:                      call.To,
		Value:                   value.String(),
		Data:                    hexutil.Encode(call.Data),
		Operation:               call.Operation,
		SafeTxGas:               "0",
		BaseGas:                 "0",
		GasPrice:                "0",
		Nonce:                   nonce.String(),
		ContractTransactionHash: safeTxHash,
		Sender:                  p.owner,
		Signature:               hexutil.Encode(signature),
		Origin:                  origin,
	}

	if err := p.service.Propose(ctx, safe, proposal); err != nil {
		return common.Hash{}, fmt.Errorf("failed to propose to safe %s: %w", safe.Hex(), err)
	}

	p.logger.
		With("safe", safe.Hex()).
		With("to", call.To.Hex()).
		With("nonce", nonce.String()).
		With("safe_tx_hash", safeTxHash.Hex()).
		Info("safe transaction awaiting confirmations")

	return safeTxHash, nil
}

func (p *Proposer) nonce(ctx context.Context, safe common.Address) (*big.Int, error) {
	data, err := funcNonce.EncodeArgs()
	if err != nil {
		return nil, fmt.Errorf("failed to encode nonce: %w", err)
	}

	out, err := p.caller.CallContract(ctx, ethereum.CallMsg{From: p.owner, To: &safe, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce of safe %s: %w", safe.Hex(), err)
	}

	var nonce *big.Int
	if err := funcNonce.DecodeReturns(out, &nonce); err != nil {
		return nil, fmt.Errorf("failed to decode safe nonce: %w", err)
	}

	return nonce, nil
}

func (p *Proposer) transactionHash(ctx context.Context, safe common.Address, call Call, value, nonce *big.Int) (common.Hash, error) {
	zero := new(big.Int)
	data, err := funcGetTransactionHash.EncodeArgs(
		call.To, value, call.Data, call.Operation,
		zero, zero, zero,
		common.Address{}, common.Address{},
		nonce,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode getTransactionHash: %w", err)
	}

	out, err := p.caller.CallContract(ctx, ethereum.CallMsg{From: p.owner, To: &safe, Data: data}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read transaction hash from safe %s: %w", safe.Hex(), err)
	}

	var hash common.Hash
	if err := funcGetTransactionHash.DecodeReturns(out, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode safe transaction hash: %w", err)
	}

	return hash, nil
}
