// Package safe proposes transactions to a Safe multisig through the Safe
// transaction service and waits for the owners to execute them.
package safe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

const (
	proposePath     = "/api/v1/safes/{safe}/multisig-transactions/"
	transactionPath = "/api/v1/multisig-transactions/{safeTxHash}/"
	safeInfoPath    = "/api/v1/safes/{safe}/"

	defaultHTTPTimeout = 30 * time.Second
)

// ErrNotFound is returned when the service does not know the requested resource.
var ErrNotFound = errors.New("not found in safe transaction service")

type (
	Client struct {
		http   *resty.Client
		logger *slog.Logger
	}

	// Proposal is the body of a multisig transaction proposal.
	Proposal struct {
		To                      common.Address `json:"to"`
		Value                   string         `json:"value"`
		Data                    string         `json:"data,omitempty"`
		Operation               uint8          `json:"operation"`
		SafeTxGas               string         `json:"safeTxGas"`
		BaseGas                 string         `json:"baseGas"`
		GasPrice                string         `json:"gasPrice"`
		GasToken                common.Address `json:"gasToken"`
		RefundReceiver          common.Address `json:"refundReceiver"`
		Nonce                   string         `json:"nonce"`
		ContractTransactionHash common.Hash    `json:"contractTransactionHash"`
		Sender                  common.Address `json:"sender"`
		Signature               string         `json:"signature"`
		Origin                  string         `json:"origin,omitempty"`
	}

	MultisigTransaction struct {
		Safe                  common.Address `json:"safe"`
		To                    common.Address `json:"to"`
		Nonce                 uint64         `json:"nonce"`
		SafeTxHash            common.Hash    `json:"safeTxHash"`
		IsExecuted            bool           `json:"isExecuted"`
		IsSuccessful          *bool          `json:"isSuccessful"`
		TransactionHash       *common.Hash   `json:"transactionHash"`
		ConfirmationsRequired int            `json:"confirmationsRequired"`
		Confirmations         []Confirmation `json:"confirmations"`
	}

	Confirmation struct {
		Owner     common.Address `json:"owner"`
		Signature string         `json:"signature"`
	}

	Info struct {
		Address   common.Address   `json:"address"`
		Nonce     uint64           `json:"nonce"`
		Threshold int              `json:"threshold"`
		Owners    []common.Address `json:"owners"`
		Version   string           `json:"version"`
	}

	// HTTPError is a non-2xx answer from the service.
	HTTPError struct {
		StatusCode int
		Body       string
	}
)

func (e *HTTPError) Error() string {
	return fmt.Sprintf("safe transaction service returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether retrying the request may succeed.
func (e *HTTPError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger.Named(log, "safe-service"),
	}
}

// Propose submits a signed proposal for safe.
func (c *Client) Propose(ctx context.Context, safe common.Address, proposal Proposal) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("safe", safe.Hex()).
		SetBody(proposal).
		Post(proposePath)
	if err != nil {
		return fmt.Errorf("failed to post proposal: %w", err)
	}
	if resp.IsError() {
		return &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	c.logger.
		With("safe", safe.Hex()).
		With("safe_tx_hash", proposal.ContractTransactionHash.Hex()).
		Info("transaction proposed")

	return nil
}

// Transaction returns the service's view of a proposed transaction.
func (c *Client) Transaction(ctx context.Context, safeTxHash common.Hash) (MultisigTransaction, error) {
	var tx MultisigTransaction
	if err := c.get(ctx, transactionPath, map[string]string{"safeTxHash": safeTxHash.Hex()}, &tx); err != nil {
		return MultisigTransaction{}, fmt.Errorf("transaction %s: %w", safeTxHash.Hex(), err)
	}
	return tx, nil
}

// SafeInfo returns the owners, threshold and current nonce of safe.
func (c *Client) SafeInfo(ctx context.Context, safe common.Address) (Info, error) {
	var info Info
	if err := c.get(ctx, safeInfoPath, map[string]string{"safe": safe.Hex()}, &info); err != nil {
		return Info{}, fmt.Errorf("safe %s: %w", safe.Hex(), err)
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNotFound
	case resp.IsError():
		return &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return nil
}
