package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to url and checks that the node answers.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("node at %s is not answering: %w", url, err)
	}

	return client, nil
}

// WaitForRPC polls url until it serves eth_blockNumber or attempts run out.
func WaitForRPC(ctx context.Context, url string, attempts int, interval time.Duration) error {
	for range attempts {
		client, err := Dial(ctx, url)
		if err == nil {
			client.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("timed out waiting for RPC at %s", url)
}
