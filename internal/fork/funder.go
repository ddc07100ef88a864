package fork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/networks"
	"github.com/compose-network/deploykit/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
	"github.com/sethvargo/go-retry"
)

var (
	funcTransfer  = w3.MustNewFunc("transfer(address,uint256)", "bool")
	funcBalanceOf = w3.MustNewFunc("balanceOf(address)", "uint256")

	// gasAllowance is credited to an impersonated holder so it can pay for the transfer.
	gasAllowance = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	errReceiptPending = errors.New("receipt pending")
)

type (
	rpcCaller interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
	}

	// Funder moves balances around on an anvil fork.
	Funder struct {
		rpc          rpcCaller
		network      networks.Network
		pollInterval time.Duration
		pollAttempts uint64
		logger       *slog.Logger
	}

	sendArgs struct {
		From common.Address `json:"from"`
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	}

	callArgs struct {
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	}

	receiptStatus struct {
		Status hexutil.Uint64 `json:"status"`
	}
)

func NewFunder(rpc rpcCaller, network networks.Network, log *slog.Logger) *Funder {
	return &Funder{
		rpc:          rpc,
		network:      network,
		pollInterval: 500 * time.Millisecond,
		pollAttempts: 120,
		logger:       logger.Named(log, "funder"),
	}
}

// FundEther sets the balance of to, amount being a decimal ether value.
func (f *Funder) FundEther(ctx context.Context, to common.Address, amount string) error {
	wei, err := units.ParseEther(amount)
	if err != nil {
		return err
	}

	if err := f.setBalance(ctx, to, wei); err != nil {
		return err
	}

	f.logger.With("to", to.Hex()).With("ether", amount).Info("balance set")
	return nil
}

// FundToken transfers amount of the symbol stablecoin to to from the
// network's known holder, impersonating it for the duration of the transfer.
func (f *Funder) FundToken(ctx context.Context, symbol string, to common.Address, amount string) (common.Hash, error) {
	token, err := f.network.Stablecoin(symbol)
	if err != nil {
		return common.Hash{}, err
	}
	whale, err := f.network.Whale(symbol)
	if err != nil {
		return common.Hash{}, err
	}

	value, err := units.ParseUnits(amount, token.Decimals)
	if err != nil {
		return common.Hash{}, err
	}

	log := f.logger.With("token", symbol).With("to", to.Hex()).With("amount", amount)

	held, err := f.balanceOf(ctx, token.Address.Address(), whale)
	if err != nil {
		return common.Hash{}, err
	}
	if held.Cmp(value) < 0 {
		return common.Hash{}, fmt.Errorf("holder %s has only %s %s", whale.Hex(), units.FormatUnits(held, token.Decimals), symbol)
	}

	if err := f.rpc.CallContext(ctx, nil, "anvil_impersonateAccount", whale); err != nil {
		return common.Hash{}, fmt.Errorf("failed to impersonate %s: %w", whale.Hex(), err)
	}
	defer func() {
		if err := f.rpc.CallContext(context.WithoutCancel(ctx), nil, "anvil_stopImpersonatingAccount", whale); err != nil {
			log.With("err", err).Warn("failed to stop impersonating")
		}
	}()

	if err := f.setBalance(ctx, whale, gasAllowance); err != nil {
		return common.Hash{}, err
	}

	data, err := funcTransfer.EncodeArgs(to, value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transfer: %w", err)
	}

	var hash common.Hash
	err = f.rpc.CallContext(ctx, &hash, "eth_sendTransaction", sendArgs{From: whale, To: token.Address.Address(), Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send %s transfer: %w", symbol, err)
	}

	if err := f.waitReceipt(ctx, hash); err != nil {
		return common.Hash{}, err
	}

	log.With("tx", hash.Hex()).Info("tokens transferred")

	return hash, nil
}

func (f *Funder) setBalance(ctx context.Context, account common.Address, wei *big.Int) error {
	if err := f.rpc.CallContext(ctx, nil, "anvil_setBalance", account, (*hexutil.Big)(wei)); err != nil {
		return fmt.Errorf("failed to set balance of %s: %w", account.Hex(), err)
	}
	return nil
}

func (f *Funder) balanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := funcBalanceOf.EncodeArgs(account)
	if err != nil {
		return nil, err
	}

	var out hexutil.Bytes
	if err := f.rpc.CallContext(ctx, &out, "eth_call", callArgs{To: token, Data: data}, "latest"); err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", account.Hex(), err)
	}

	var balance *big.Int
	if err := funcBalanceOf.DecodeReturns(out, &balance); err != nil {
		return nil, fmt.Errorf("failed to decode balance: %w", err)
	}
	return balance, nil
}

func (f *Funder) waitReceipt(ctx context.Context, hash common.Hash) error {
	backoff := retry.WithMaxRetries(f.pollAttempts, retry.NewConstant(f.pollInterval))

	var receipt *receiptStatus
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := f.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
			return err
		}
		if receipt == nil {
			return retry.RetryableError(errReceiptPending)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get receipt of %s: %w", hash.Hex(), err)
	}

	if uint64(receipt.Status) != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transfer %s reverted", hash.Hex())
	}
	return nil
}
