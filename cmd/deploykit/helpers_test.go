package main

import (
	"testing"

	"github.com/compose-network/deploykit/internal/addresses"
	fsjson "github.com/compose-network/deploykit/internal/infra/filesystem/json"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAddress(t *testing.T) {
	store := addresses.NewStore(t.TempDir(), fsjson.NewReader(), fsjson.NewWriter(), logger.Discard())
	pool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	require.NoError(t, store.Update("MAINNET", map[string]common.Address{"PoolManager": pool}))

	literal := "0x00000000000000000000000000000000000000bb"
	got, err := resolveAddress(store, "MAINNET", literal)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(literal), got)

	for _, expr := range []string{"PoolManager", "@PoolManager", " @PoolManager "} {
		got, err := resolveAddress(store, "MAINNET", expr)
		require.NoError(t, err, expr)
		assert.Equal(t, pool, got, expr)
	}

	_, err = resolveAddress(store, "MAINNET", "TvlManager")
	require.ErrorIs(t, err, addresses.ErrKeyNotFound)
}

func TestParseHash(t *testing.T) {
	hash, err := parseHash("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), hash[0])

	_, err = parseHash("0x1234")
	require.Error(t, err)
	_, err = parseHash("not-a-hash")
	require.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "", hexOrEmpty(common.Hash{}))
	assert.Equal(t, "", hexOrEmpty(common.Address{}))
	assert.Equal(t, common.HexToAddress("0x01").Hex(), hexOrEmpty(common.HexToAddress("0x01")))

	assert.Equal(t, "KEY          ADDRESS\nPoolManager  <none>", formatList([]string{"KEY | ADDRESS", "PoolManager | "}))
	assert.Equal(t, "Nonce = 3", formatKV([]string{"Nonce | 3"}))
}
