package safe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrPollTimeout means the transaction was not executed within the poll budget.
	ErrPollTimeout = errors.New("timed out waiting for safe transaction execution")
	// ErrExecutionFailed means the owners executed the transaction and it reverted.
	ErrExecutionFailed = errors.New("safe transaction executed but failed")

	errPending = errors.New("safe transaction not executed yet")
)

type (
	transactionService interface {
		Transaction(ctx context.Context, safeTxHash common.Hash) (MultisigTransaction, error)
	}

	PollerOptions struct {
		// Interval is the first delay between polls; it doubles up to MaxInterval.
		Interval    time.Duration
		MaxInterval time.Duration
		// Timeout bounds the whole wait.
		Timeout time.Duration
	}

	Poller struct {
		service transactionService
		opts    PollerOptions
		logger  *slog.Logger
	}

	ExecutionResult struct {
		SafeTxHash      common.Hash
		TransactionHash common.Hash
		Confirmations   int
	}
)

func NewPoller(service transactionService, opts PollerOptions, log *slog.Logger) *Poller {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = time.Minute
	}
	if opts.Timeout == 0 {
		opts.Timeout = 24 * time.Hour
	}

	return &Poller{
		service: service,
		opts:    opts,
		logger:  logger.Named(log, "safe-poller"),
	}
}

// Wait polls the service until the transaction is executed, the timeout
// elapses or ctx is cancelled. Service errors that may be transient are retried
// within the same budget.
func (p *Poller) Wait(ctx context.Context, safeTxHash common.Hash) (ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	log := p.logger.With("safe_tx_hash", safeTxHash.Hex())

	backoff := retry.NewExponential(p.opts.Interval)
	backoff = retry.WithCappedDuration(p.opts.MaxInterval, backoff)
	backoff = retry.WithMaxDuration(p.opts.Timeout, backoff)

	var (
		result    ExecutionResult
		lastErr   error
		permanent bool
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := p.service.Transaction(ctx, safeTxHash)
		if err != nil {
			if retryable(err) {
				lastErr = err
				log.With("err", err).Warn("safe transaction service unavailable, retrying")
				return retry.RetryableError(err)
			}
			permanent = true
			return err
		}

		if !tx.IsExecuted {
			lastErr = errPending
			log.
				With("confirmations", len(tx.Confirmations)).
				With("required", tx.ConfirmationsRequired).
				Debug("safe transaction pending")
			return retry.RetryableError(errPending)
		}

		result = ExecutionResult{SafeTxHash: safeTxHash, Confirmations: len(tx.Confirmations)}
		if tx.TransactionHash != nil {
			result.TransactionHash = *tx.TransactionHash
		}

		if tx.IsSuccessful != nil && !*tx.IsSuccessful {
			permanent = true
			return fmt.Errorf("%w: transaction %s", ErrExecutionFailed, result.TransactionHash.Hex())
		}

		return nil
	})

	switch {
	case err == nil:
		log.With("tx_hash", result.TransactionHash.Hex()).Info("safe transaction executed")
		return result, nil
	case errors.Is(err, ErrExecutionFailed):
		return result, err
	case errors.Is(ctx.Err(), context.Canceled):
		return ExecutionResult{}, fmt.Errorf("stopped waiting for safe transaction %s: %w", safeTxHash.Hex(), ctx.Err())
	case permanent && ctx.Err() == nil:
		return ExecutionResult{}, fmt.Errorf("failed to poll safe transaction %s: %w", safeTxHash.Hex(), err)
	case lastErr == nil || errors.Is(lastErr, errPending):
		return ExecutionResult{}, fmt.Errorf("%w: %s after %s", ErrPollTimeout, safeTxHash.Hex(), p.opts.Timeout)
	default:
		// the budget ran out while the service kept failing
		return ExecutionResult{}, fmt.Errorf("%w: %s after %s: %w", ErrPollTimeout, safeTxHash.Hex(), p.opts.Timeout, lastErr)
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		// freshly proposed transactions take a moment to be indexed
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}

	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
