package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	// Backend is what the transactor needs from a node connection.
	// *ethclient.Client and the simulated backend client both satisfy it.
	Backend interface {
		bind.ContractBackend
		bind.DeployBackend
		BlockNumber(ctx context.Context) (uint64, error)
		ChainID(ctx context.Context) (*big.Int, error)
	}

	Options struct {
		// Confirmations is the number of blocks on top of the inclusion block
		// to wait for before a transaction counts as done.
		Confirmations uint64
		// GasLimit of 0 lets the node estimate.
		GasLimit uint64
		// GasPrice forces a legacy gas price; nil uses the node's fee suggestion.
		GasPrice *big.Int
		// Timeout bounds the wait for a single transaction.
		Timeout      time.Duration
		PollInterval time.Duration
	}

	// Transactor sends transactions from one key and waits for them, one at a time.
	Transactor struct {
		backend Backend
		key     *ecdsa.PrivateKey
		from    common.Address
		chainID *big.Int
		opts    Options
		logger  *slog.Logger
	}

	// TxError reports a transaction that was mined but reverted.
	TxError struct {
		Hash   common.Hash
		Block  uint64
		Status uint64
	}
)

const (
	defaultTimeout      = 5 * time.Minute
	defaultPollInterval = 2 * time.Second
)

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed with status %d in block %d", e.Hash.Hex(), e.Status, e.Block)
}

// NewTransactor binds key to backend. The chain ID is read from the node.
func NewTransactor(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, opts Options, log *slog.Logger) (*Transactor, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}

	from := crypto.PubkeyToAddress(key.PublicKey)

	return &Transactor{
		backend: backend,
		key:     key,
		from:    from,
		chainID: chainID,
		opts:    opts,
		logger:  logger.Named(log, "transactor").With("from", from.Hex(), "chain_id", chainID),
	}, nil
}

func (t *Transactor) From() common.Address {
	return t.from
}

func (t *Transactor) ChainID() *big.Int {
	return new(big.Int).Set(t.chainID)
}

// Deploy sends the creation transaction for artifact and waits for it.
func (t *Transactor) Deploy(ctx context.Context, artifact contracts.Artifact, args ...any) (common.Address, *types.Receipt, error) {
	if err := artifact.Deployable(); err != nil {
		return common.Address{}, nil, err
	}

	auth, err := t.auth(ctx)
	if err != nil {
		return common.Address{}, nil, err
	}

	address, tx, _, err := bind.DeployContract(auth, artifact.ABI, artifact.Bytecode, t.backend, args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to deploy %s: %w", artifact.ID, err)
	}

	t.logger.
		With("contract", artifact.ID).
		With("address", address.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Info("contract deployment transaction sent")

	receipt, err := t.WaitConfirmed(ctx, tx)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deployment of %s: %w", artifact.ID, err)
	}

	if receipt.ContractAddress != (common.Address{}) && receipt.ContractAddress != address {
		return common.Address{}, nil, fmt.Errorf("deployment of %s landed at %s, expected %s", artifact.ID, receipt.ContractAddress.Hex(), address.Hex())
	}

	return address, receipt, nil
}

// Transact sends raw calldata to a contract and waits for it.
func (t *Transactor) Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	auth, err := t.auth(ctx)
	if err != nil {
		return nil, err
	}

	contract := bind.NewBoundContract(to, abi.ABI{}, t.backend, t.backend, t.backend)
	tx, err := contract.RawTransact(auth, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction to %s: %w", to.Hex(), err)
	}

	t.logger.
		With("to", to.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Info("transaction sent")

	return t.WaitConfirmed(ctx, tx)
}

// CallContract performs a read-only call against the latest block.
func (t *Transactor) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.From == (common.Address{}) {
		msg.From = t.from
	}
	return t.backend.CallContract(ctx, msg, blockNumber)
}

// WaitConfirmed waits until tx is mined successfully and buried under the
// configured number of confirmations.
func (t *Transactor) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	log := t.logger.With("tx_hash", tx.Hash().Hex())

	for {
		receipt, err := bind.WaitMined(ctx, t.backend, tx)
		if err != nil {
			return nil, fmt.Errorf("failed to wait for transaction %s: %w", tx.Hash().Hex(), err)
		}

		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, &TxError{Hash: tx.Hash(), Block: receipt.BlockNumber.Uint64(), Status: receipt.Status}
		}

		if t.opts.Confirmations == 0 {
			return receipt, nil
		}

		target := receipt.BlockNumber.Uint64() + t.opts.Confirmations
		log.With("block", receipt.BlockNumber.Uint64()).With("target", target).Debug("waiting for confirmations")

		if err := t.waitForBlock(ctx, target); err != nil {
			return nil, err
		}

		// The receipt may have moved if the inclusion block was reorganised away.
		current, err := t.backend.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				log.Warn("transaction dropped by reorganisation, waiting again")
				continue
			}
			return nil, fmt.Errorf("failed to re-read receipt for %s: %w", tx.Hash().Hex(), err)
		}
		if current.BlockHash != receipt.BlockHash {
			log.Warn("transaction re-included in another block, waiting again")
			continue
		}

		log.With("block", current.BlockNumber.Uint64()).With("confirmations", t.opts.Confirmations).Info("transaction confirmed")

		return current, nil
	}
}

func (t *Transactor) waitForBlock(ctx context.Context, target uint64) error {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		head, err := t.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to read block number: %w", err)
		}
		if head >= target {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for block %d: %w", target, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *Transactor) auth(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(t.key, t.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = t.opts.GasLimit
	if t.opts.GasPrice != nil {
		auth.GasPrice = new(big.Int).Set(t.opts.GasPrice)
	}

	return auth, nil
}
