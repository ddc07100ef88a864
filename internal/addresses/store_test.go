package addresses

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	fsjson "github.com/compose-network/deploykit/internal/infra/filesystem/json"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	addrC = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
)

type failingWriter struct{}

func (failingWriter) WriteJSON(string, any) error { return errors.New("disk full") }
func (failingWriter) WriteBytes(string, []byte) error { return errors.New("disk full") }

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), fsjson.NewReader(), fsjson.NewWriter(), logger.Discard())
}

func TestUpdateThenGet(t *testing.T) {
	store := newStore(t)

	for _, network := range []string{"mainnet", "GOERLI", " localhost "} {
		patch := map[string]common.Address{"PoolManager": addrA, "TvlManager": addrB}
		require.NoError(t, store.Update(network, patch))

		for key, want := range patch {
			got, err := store.Get(key, network)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestPartialUpdatePreservesExistingKeys(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Update("mainnet", map[string]common.Address{"PoolManager": addrA, "OracleAdapter": addrC}))
	require.NoError(t, store.Update("mainnet", map[string]common.Address{"TvlManager": addrB, "OracleAdapter": addrA}))

	all, err := store.All("MAINNET")
	require.NoError(t, err)
	assert.Equal(t, map[string]common.Address{
		"PoolManager":   addrA,
		"TvlManager":    addrB,
		"OracleAdapter": addrA,
	}, all)
}

func TestUpdateMergesIntoExistingFile(t *testing.T) {
	store := newStore(t)
	path := store.Path("mainnet")

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{"PoolManager": "0x1111111111111111111111111111111111111111"}`), 0644))

	require.NoError(t, store.Update("mainnet", map[string]common.Address{"TvlManager": addrB}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, map[string]string{
		"PoolManager": "0x1111111111111111111111111111111111111111",
		"TvlManager":  "0x2222222222222222222222222222222222222222",
	}, onDisk)
}

func TestAddressesAreWrittenChecksummed(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Update("mainnet", map[string]common.Address{"Token": addrC}))

	raw, err := os.ReadFile(store.Path("mainnet"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
}

func TestGetMissing(t *testing.T) {
	store := newStore(t)

	_, err := store.Get("PoolManager", "mainnet")
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Update("mainnet", map[string]common.Address{"TvlManager": addrB}))

	_, err = store.Get("PoolManager", "mainnet")
	require.ErrorIs(t, err, ErrKeyNotFound)
	assert.Contains(t, err.Error(), `"PoolManager"`)
	assert.Contains(t, err.Error(), "MAINNET")
}

func TestLookupIsTolerant(t *testing.T) {
	store := newStore(t)

	_, ok, err := store.Lookup("PoolManager", "mainnet")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Update("mainnet", map[string]common.Address{"PoolManager": addrA}))

	addr, ok, err := store.Lookup("PoolManager", "mainnet")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, addrA, addr)
}

func TestNetworksAreIsolated(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Update("mainnet", map[string]common.Address{"PoolManager": addrA}))

	_, err := store.Get("PoolManager", "goerli")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCorruptFileIsNotTreatedAsMissing(t *testing.T) {
	store := newStore(t)
	path := store.Path("mainnet")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{"PoolManager": "nope"}`), 0644))

	_, err := store.Get("PoolManager", "mainnet")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrKeyNotFound))

	err = store.Update("mainnet", map[string]common.Address{"TvlManager": addrB})
	require.Error(t, err, "a corrupt file must not be silently replaced")
}

func TestUpdateSurfacesWriteErrors(t *testing.T) {
	store := NewStore(t.TempDir(), fsjson.NewReader(), failingWriter{}, logger.Discard())

	err := store.Update("mainnet", map[string]common.Address{"PoolManager": addrA})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestUpdateValidatesInput(t *testing.T) {
	store := newStore(t)
	require.Error(t, store.Update("", map[string]common.Address{"PoolManager": addrA}))
	require.Error(t, store.Update("mainnet", map[string]common.Address{"": addrA}))
}
