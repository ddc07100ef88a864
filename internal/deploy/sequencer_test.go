package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/compose-network/deploykit/internal/addresses"
	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryManifest = `
network: mainnet
signer: registry-deployer
steps:
  - name: proxy-admin
    action: deploy
    contract: ProxyAdmin
    save-as: AddressRegistryProxyAdmin
  - name: logic
    action: deploy
    contract: AddressRegistryV2
    save-as: AddressRegistryV2Logic
  - name: proxy
    action: deploy-proxy
    depends-on: [proxy-admin, logic]
    logic: AddressRegistryV2Logic
    admin: "@AddressRegistryProxyAdmin"
    init:
      contract: AddressRegistryV2
      method: initialize
      args: [$deployer]
    save-as: AddressRegistryProxy
  - name: register-tvl-manager
    action: register
    depends-on: [proxy]
    registry: AddressRegistryProxy
    id: tvlManager
    address: "@TvlManager"
  - name: transfer-admin
    action: transfer-ownership
    depends-on: [proxy-admin]
    target: AddressRegistryProxyAdmin
    new-owner: "@AdminSafe"
`

var (
	tvlManager = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	adminSafe  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func seededHarness(t *testing.T) harness {
	t.Helper()
	h := newHarness(t)
	require.NoError(t, h.store.Update("MAINNET", map[string]common.Address{
		"TvlManager": tvlManager,
		"AdminSafe":  adminSafe,
	}))
	return h
}

func parse(t *testing.T, data string) Manifest {
	t.Helper()
	manifest, err := ParseManifest([]byte(data))
	require.NoError(t, err)
	return manifest
}

func fingerprint(t *testing.T, step Step) string {
	t.Helper()
	fp, err := step.Fingerprint()
	require.NoError(t, err)
	return fp
}

func TestRunAllSteps(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()
	manifest := parse(t, registryManifest)

	result, err := h.sequencer(chain).Run(context.Background(), manifest, Options{})
	require.NoError(t, err)

	assert.Equal(t, AllStepsCompleted, result.Progress.State())
	assert.Equal(t, "MAINNET", result.Network)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []contracts.ID{contracts.IDProxyAdmin, contracts.IDAddressRegistryV2, contracts.IDTransparentUpgradeableProxy}, chain.deployedIDs())

	proxy, err := h.store.Get("AddressRegistryProxy", "MAINNET")
	require.NoError(t, err)

	// the proxy was built from the persisted logic and admin
	logic, err := h.store.Get("AddressRegistryV2Logic", "MAINNET")
	require.NoError(t, err)
	admin, err := h.store.Get("AddressRegistryProxyAdmin", "MAINNET")
	require.NoError(t, err)
	proxyArgs := chain.deployed[2].args
	assert.Equal(t, logic, proxyArgs[0])
	assert.Equal(t, admin, proxyArgs[1])
	assert.NotEmpty(t, proxyArgs[2], "initializer calldata")

	resolved, err := registry.New(proxy, chain, nil, logger.Discard()).ResolveNamed(context.Background(), identifier.TvlManager)
	require.NoError(t, err)
	assert.Equal(t, tvlManager, resolved)

	assert.Equal(t, adminSafe, chain.owners[admin])

	for _, step := range result.Steps {
		assert.Equal(t, StatusExecuted, step.Status, step.Name)
	}
}

func TestFailedStepResumesWithoutRedeploying(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()
	manifest := parse(t, registryManifest)

	chain.failDeploy[contracts.IDTransparentUpgradeableProxy] = errors.New("insufficient funds for gas")

	result, err := h.sequencer(chain).Run(context.Background(), manifest, Options{})
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "proxy", stepErr.Step)
	assert.Equal(t, 2, stepErr.Index)
	assert.Contains(t, err.Error(), "insufficient funds")

	assert.Equal(t, StepCompleted, result.Progress.State())
	assert.Equal(t, "step 2 of 5 completed", result.Progress.String())

	// steps 1 and 2 are persisted, step 3 is not
	logic, err := h.store.Get("AddressRegistryV2Logic", "MAINNET")
	require.NoError(t, err)
	_, err = h.store.Get("AddressRegistryProxyAdmin", "MAINNET")
	require.NoError(t, err)
	_, err = h.store.Get("AddressRegistryProxy", "MAINNET")
	require.ErrorIs(t, err, addresses.ErrKeyNotFound)

	// re-run step 3 alone
	delete(chain.failDeploy, contracts.IDTransparentUpgradeableProxy)
	deployedBefore := len(chain.deployed)

	result, err = h.sequencer(chain).Run(context.Background(), manifest, Options{Only: "proxy"})
	require.NoError(t, err)

	require.Len(t, chain.deployed, deployedBefore+1)
	assert.Equal(t, contracts.IDTransparentUpgradeableProxy, chain.deployed[deployedBefore].id)
	assert.Equal(t, logic, chain.deployed[deployedBefore].args[0])

	assert.Equal(t, StatusSkipped, result.Steps[0].Status)
	assert.Equal(t, StatusSkipped, result.Steps[1].Status)
	assert.Equal(t, StatusExecuted, result.Steps[2].Status)
	assert.Equal(t, StatusOutside, result.Steps[3].Status)
	assert.Equal(t, "step 3 of 5 completed", result.Progress.String())

	// the remaining steps finish without touching 1-3
	result, err = h.sequencer(chain).Run(context.Background(), manifest, Options{})
	require.NoError(t, err)
	assert.Len(t, chain.deployed, deployedBefore+1)
	assert.Equal(t, AllStepsCompleted, result.Progress.State())
}

func TestOnlyRequiresCompletedDependencies(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()

	_, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{Only: "proxy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `dependency "proxy-admin" has not completed`)
	assert.Contains(t, err.Error(), `dependency "logic" has not completed`)
	assert.Empty(t, chain.deployed)
}

func TestFromStillRequiresDependencies(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()

	result, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{From: "logic"})
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "proxy", stepErr.Step)
	assert.Contains(t, err.Error(), `dependency "proxy-admin" has not completed`)
	assert.NotContains(t, err.Error(), `dependency "logic"`)

	assert.Equal(t, []contracts.ID{contracts.IDAddressRegistryV2}, chain.deployedIDs())
	assert.Equal(t, StatusOutside, result.Steps[0].Status)
	assert.Equal(t, StatusExecuted, result.Steps[1].Status)
}

const poolManifest = `
network: mainnet
signer: pool-deployer
steps:
  - name: proxy-admin
    action: deploy
    contract: ProxyAdmin
    save-as: PoolProxyAdmin
  - name: transfer-admin
    action: transfer-ownership
    depends-on: [proxy-admin]
    target: PoolProxyAdmin
    new-owner: "@AdminSafe"
`

func TestManifestsSharingStepNames(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()

	_, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{})
	require.NoError(t, err)

	result, err := h.sequencer(chain).Run(context.Background(), parse(t, poolManifest), Options{})
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, StatusExecuted, result.Steps[0].Status)
	assert.Equal(t, StatusExecuted, result.Steps[1].Status)

	poolAdmin, err := h.store.Get("PoolProxyAdmin", "MAINNET")
	require.NoError(t, err)
	assert.Equal(t, adminSafe, chain.owners[poolAdmin])

	registryAdmin, err := h.store.Get("AddressRegistryProxyAdmin", "MAINNET")
	require.NoError(t, err)
	assert.NotEqual(t, registryAdmin, poolAdmin)
	assert.Equal(t, adminSafe, chain.owners[registryAdmin])
}

func TestAlternatingManifestsDoNotRepeatSteps(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()

	_, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{})
	require.NoError(t, err)
	_, err = h.sequencer(chain).Run(context.Background(), parse(t, poolManifest), Options{})
	require.NoError(t, err)
	sent, deployed := len(chain.sent), len(chain.deployed)

	for _, manifest := range []string{registryManifest, poolManifest} {
		result, err := h.sequencer(chain).Run(context.Background(), parse(t, manifest), Options{})
		require.NoError(t, err)
		for _, step := range result.Steps {
			assert.Equal(t, StatusSkipped, step.Status, step.Name)
		}
	}

	assert.Len(t, chain.sent, sent)
	assert.Len(t, chain.deployed, deployed)
}

func TestChangedStepRunsAgain(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()

	_, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{})
	require.NoError(t, err)
	sentBefore := len(chain.sent)

	newSafe := common.HexToAddress("0x00000000000000000000000000000000000000a3")
	require.NoError(t, h.store.Update("MAINNET", map[string]common.Address{"NewAdminSafe": newSafe}))

	manifest := parse(t, registryManifest)
	manifest.Steps[4].NewOwner = "@NewAdminSafe"

	result, err := h.sequencer(chain).Run(context.Background(), manifest, Options{})
	require.NoError(t, err)

	for _, step := range result.Steps[:4] {
		assert.Equal(t, StatusSkipped, step.Status, step.Name)
	}
	assert.Equal(t, StatusExecuted, result.Steps[4].Status)
	assert.Len(t, chain.sent, sentBefore+1)

	admin, err := h.store.Get("AddressRegistryProxyAdmin", "MAINNET")
	require.NoError(t, err)
	assert.Equal(t, newSafe, chain.owners[admin])

	// the new definition is now the recorded one
	result, err = h.sequencer(chain).Run(context.Background(), manifest, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Steps[4].Status)
	assert.Len(t, chain.sent, sentBefore+1)
}

func TestDryRunSendsNothing(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()

	require.NoError(t, h.store.Update("MAINNET", map[string]common.Address{"AddressRegistryProxyAdmin": adminSafe}))

	result, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, chain.deployed)
	assert.Empty(t, chain.sent)

	require.Len(t, result.Steps, 5)
	assert.Equal(t, StatusSkipped, result.Steps[0].Status, "save-as key already stored")
	assert.Equal(t, adminSafe, result.Steps[0].Address)
	for _, step := range result.Steps[1:] {
		assert.Equal(t, StatusPending, step.Status)
	}
}

func TestStoredKeySkipsDeployment(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()
	existing := common.HexToAddress("0x00000000000000000000000000000000000000b1")

	require.NoError(t, h.store.Update("MAINNET", map[string]common.Address{"AddressRegistryV2Logic": existing}))

	_, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{Only: "logic"})
	require.NoError(t, err)
	assert.Empty(t, chain.deployed)

	got, err := h.store.Get("AddressRegistryV2Logic", "MAINNET")
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}

func TestTransferOwnershipIsVerified(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()
	chain.ignoreTransfers = true

	result, err := h.sequencer(chain).Run(context.Background(), parse(t, registryManifest), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after transfer")
	assert.Equal(t, "step 4 of 5 completed", result.Progress.String())

	_, done, err := h.journal.Completed("MAINNET", "transfer-admin", fingerprint(t, parse(t, registryManifest).Steps[4]))
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMissingStoreKeyAbortsStep(t *testing.T) {
	h := newHarness(t)
	chain := newFakeChain()

	manifest := parse(t, `
steps:
  - name: register
    action: register
    registry: "0x00000000000000000000000000000000000000c1"
    id: poolManager
    address: "@PoolManager"
`)

	_, err := h.sequencer(chain).Run(context.Background(), manifest, Options{})
	require.ErrorIs(t, err, addresses.ErrKeyNotFound)
}

func TestNetworkMismatch(t *testing.T) {
	h := newHarness(t)
	manifest := parse(t, registryManifest)
	manifest.Network = "goerli"

	_, err := h.sequencer(newFakeChain()).Run(context.Background(), manifest, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOERLI")
}

func TestSafeCall(t *testing.T) {
	h := seededHarness(t)
	chain := newFakeChain()
	multisig := &fakeSafe{executed: common.HexToHash("0xe0")}

	target := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	require.NoError(t, h.store.Update("MAINNET", map[string]common.Address{"RegistryProxyAdmin": target}))

	manifest := parse(t, `
steps:
  - name: upgrade-registry
    action: safe-call
    safe: "@AdminSafe"
    target: RegistryProxyAdmin
    contract: ProxyAdmin
    method: upgrade
    args: ["0x00000000000000000000000000000000000000d2", "0x00000000000000000000000000000000000000d3"]
`)

	result, err := h.sequencer(chain).WithSafe(multisig, multisig).Run(context.Background(), manifest, Options{})
	require.NoError(t, err)

	require.Len(t, multisig.proposed, 1)
	assert.Equal(t, target, multisig.proposed[0].To)
	assert.Equal(t, h.artifacts.Get(contracts.IDProxyAdmin).ABI.Methods["upgrade"].ID, multisig.proposed[0].Data[:4])
	assert.Equal(t, common.HexToHash("0xe0"), result.Steps[0].TxHash)

	record, done, err := h.journal.Completed("MAINNET", "upgrade-registry", fingerprint(t, manifest.Steps[0]))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, common.HexToHash("0xe0"), record.TxHash)
}

func TestSafeCallWithoutService(t *testing.T) {
	h := seededHarness(t)

	manifest := parse(t, `
steps:
  - name: upgrade
    action: safe-call
    safe: "@AdminSafe"
    target: "@AdminSafe"
    contract: ProxyAdmin
    method: owner
`)

	_, err := h.sequencer(newFakeChain()).Run(context.Background(), manifest, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safe transaction service")
}

func TestProgress(t *testing.T) {
	assert.Equal(t, NotStarted, Progress{Total: 5}.State())
	assert.Equal(t, StepCompleted, Progress{Completed: 1, Total: 5}.State())
	assert.Equal(t, AllStepsCompleted, Progress{Completed: 5, Total: 5}.State())
	assert.Equal(t, "not started", Progress{Total: 5}.String())
	assert.Equal(t, "all steps completed", Progress{Completed: 5, Total: 5}.String())
}
