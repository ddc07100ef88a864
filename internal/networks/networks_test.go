package networks

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	mainnet, err := catalog.Get("mainnet")
	require.NoError(t, err)
	assert.Equal(t, "MAINNET", mainnet.Name)
	assert.Equal(t, uint64(1), mainnet.ChainID)
	assert.NotZero(t, mainnet.ForkBlockNumber)

	usdc, err := mainnet.Stablecoin("usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), usdc.Decimals)
	assert.Equal(t, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), usdc.Address.Address())

	for _, symbol := range []string{"DAI", "USDC", "USDT"} {
		_, err := mainnet.Whale(symbol)
		require.NoError(t, err, symbol)
	}

	_, err = mainnet.Aggregator("tvl")
	require.NoError(t, err)
}

func TestGetUnknownNetwork(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	_, err = catalog.Get("ropsten")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAINNET")
}

func TestParseRejectsBadAddress(t *testing.T) {
	_, err := Parse([]byte(`
test:
  chain-id: 5
  whales:
    DAI: "0x1234"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
test:
  chain-id: 5
  rpc: http://localhost:8545
`))
	require.Error(t, err)
}

func TestMissingEntries(t *testing.T) {
	catalog, err := Parse([]byte("goerli:\n  chain-id: 5\n"))
	require.NoError(t, err)

	goerli, err := catalog.Get("GOERLI")
	require.NoError(t, err)

	_, err = goerli.Stablecoin("DAI")
	require.Error(t, err)
	_, err = goerli.Whale("DAI")
	require.Error(t, err)
}
