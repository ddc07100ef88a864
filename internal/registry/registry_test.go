package registry_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/registry"
	"github.com/compose-network/deploykit/internal/registry/registrytest"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddress = common.HexToAddress("0x7EC81B7035e91f8435BdEb2787DCBd51116Ad303")
	poolManager     = common.HexToAddress("0xABC0000000000000000000000000000000000001")
	tvlManager      = common.HexToAddress("0xABC0000000000000000000000000000000000002")
)

func newClient(t *testing.T) (*registry.Client, *registrytest.Registry) {
	t.Helper()
	fake := registrytest.New(registryAddress)
	return registry.New(registryAddress, fake, fake, logger.Discard()), fake
}

func TestRegisterThenResolve(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	_, err := client.Register(ctx, identifier.MustEncode("poolManager"), poolManager)
	require.NoError(t, err)

	got, err := client.Resolve(ctx, identifier.MustEncode("poolManager"))
	require.NoError(t, err)
	assert.Equal(t, poolManager, got)

	got, err = client.ResolveNamed(ctx, identifier.PoolManager)
	require.NoError(t, err)
	assert.Equal(t, poolManager, got)
}

func TestResolveMissingAddress(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.ResolveNamed(context.Background(), "tvlManager")
	require.Error(t, err)

	var missing *registry.MissingAddressError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, identifier.MustEncode("tvlManager"), missing.ID)
	assert.Contains(t, err.Error(), "Missing address")
	assert.Contains(t, err.Error(), "tvlManager")
}

func TestResolveZeroAddressIsMissing(t *testing.T) {
	client, fake := newClient(t)
	fake.Set(identifier.MustEncode("poolManager"), common.Address{})

	_, err := client.ResolveNamed(context.Background(), identifier.PoolManager)

	var missing *registry.MissingAddressError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, identifier.MustEncode("poolManager"), missing.ID)
	assert.Contains(t, err.Error(), "Missing address")
	assert.Contains(t, err.Error(), "zero address")
}

func TestResolveNamedTooLong(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.ResolveNamed(context.Background(), "an identifier that is longer than thirty two bytes")
	require.ErrorIs(t, err, identifier.ErrTooLong)
}

func TestRegisterManyAndIDs(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	ids := [][32]byte{identifier.MustEncode(identifier.PoolManager), identifier.MustEncode(identifier.TvlManager)}
	_, err := client.RegisterMany(ctx, ids, []common.Address{poolManager, tvlManager})
	require.NoError(t, err)

	listed, err := client.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, listed)

	_, err = client.RegisterMany(ctx, ids, []common.Address{poolManager})
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	fake.Set(identifier.MustEncode(identifier.PoolManager), poolManager)

	_, err := client.Delete(ctx, identifier.MustEncode(identifier.PoolManager))
	require.NoError(t, err)

	_, err = client.ResolveNamed(ctx, identifier.PoolManager)
	var missing *registry.MissingAddressError
	require.ErrorAs(t, err, &missing)

	ids, err := client.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReadOnlyClient(t *testing.T) {
	fake := registrytest.New(registryAddress)
	client := registry.New(registryAddress, fake, nil, logger.Discard())

	_, err := client.Register(context.Background(), identifier.MustEncode(identifier.PoolManager), poolManager)
	require.ErrorIs(t, err, registry.ErrReadOnly)
}

type messageOnlyCaller struct {
	err error
}

func (c messageOnlyCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, c.err
}

func TestResolveRevertReasonFromMessage(t *testing.T) {
	client := registry.New(registryAddress, messageOnlyCaller{err: errors.New("execution reverted: Missing address")}, nil, logger.Discard())

	_, err := client.ResolveNamed(context.Background(), identifier.PoolManager)
	var missing *registry.MissingAddressError
	require.ErrorAs(t, err, &missing)
}

func TestResolveOtherFailuresAreNotMissing(t *testing.T) {
	cause := errors.New("connection refused")
	client := registry.New(registryAddress, messageOnlyCaller{err: cause}, nil, logger.Discard())

	_, err := client.ResolveNamed(context.Background(), identifier.PoolManager)
	require.ErrorIs(t, err, cause)

	var missing *registry.MissingAddressError
	assert.False(t, errors.As(err, &missing))

	client = registry.New(registryAddress, messageOnlyCaller{err: errors.New("execution reverted: Paused")}, nil, logger.Discard())
	_, err = client.ResolveNamed(context.Background(), identifier.PoolManager)
	require.Error(t, err)
	assert.False(t, errors.As(err, &missing))
}
