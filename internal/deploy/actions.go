package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/compose-network/deploykit/internal/registry"
	"github.com/compose-network/deploykit/internal/safe"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

var (
	funcOwner             = w3.MustNewFunc("owner()", "address")
	funcTransferOwnership = w3.MustNewFunc("transferOwnership(address)", "")
)

type stepOutcome struct {
	address common.Address
	txHash  common.Hash
}

func (s *Sequencer) execute(ctx context.Context, step Step) (stepOutcome, error) {
	switch step.Action {
	case ActionDeploy:
		return s.deploy(ctx, step)
	case ActionDeployProxy:
		return s.deployProxy(ctx, step)
	case ActionRegister:
		return s.register(ctx, step)
	case ActionTransferOwnership:
		return s.transferOwnership(ctx, step)
	case ActionCall:
		return s.call(ctx, step)
	case ActionSafeCall:
		return s.safeCall(ctx, step)
	default:
		return stepOutcome{}, fmt.Errorf("unknown action %q", step.Action)
	}
}

func (s *Sequencer) deploy(ctx context.Context, step Step) (stepOutcome, error) {
	artifact := s.artifacts.Get(step.Contract)

	args, err := convertArgs(artifact.ABI.Constructor.Inputs, step.Args, s.resolveAddress)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("constructor of %s: %w", step.Contract, err)
	}

	address, receipt, err := s.chain.Deploy(ctx, artifact, args...)
	if err != nil {
		return stepOutcome{}, err
	}

	return stepOutcome{address: address, txHash: receiptHash(receipt)}, nil
}

func (s *Sequencer) deployProxy(ctx context.Context, step Step) (stepOutcome, error) {
	logic, err := s.resolveAddress(step.Logic)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("logic: %w", err)
	}

	admin, err := s.resolveAddress(step.Admin)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("admin: %w", err)
	}

	initData := []byte{}
	if step.Init != nil {
		initData, err = s.encodeCall(*step.Init)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("init: %w", err)
		}
	}

	proxy := s.artifacts.Get(contracts.IDTransparentUpgradeableProxy)
	address, receipt, err := s.chain.Deploy(ctx, proxy, logic, admin, initData)
	if err != nil {
		return stepOutcome{}, err
	}

	return stepOutcome{address: address, txHash: receiptHash(receipt)}, nil
}

func (s *Sequencer) register(ctx context.Context, step Step) (stepOutcome, error) {
	registryAddress, err := s.resolveAddress(step.Registry)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("registry: %w", err)
	}

	address, err := s.resolveAddress(step.Address)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("address: %w", err)
	}

	id, err := identifier.Encode(step.ID)
	if err != nil {
		return stepOutcome{}, err
	}

	client := registry.New(registryAddress, s.chain, s.chain, s.logger)
	receipt, err := client.Register(ctx, id, address)
	if err != nil {
		return stepOutcome{}, err
	}

	resolved, err := client.Resolve(ctx, id)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to read back %q: %w", step.ID, err)
	}
	if resolved != address {
		return stepOutcome{}, fmt.Errorf("registry resolves %q to %s, expected %s", step.ID, resolved.Hex(), address.Hex())
	}

	return stepOutcome{address: address, txHash: receiptHash(receipt)}, nil
}

func (s *Sequencer) transferOwnership(ctx context.Context, step Step) (stepOutcome, error) {
	target, err := s.resolveAddress(step.Target)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("target: %w", err)
	}

	newOwner, err := s.resolveAddress(step.NewOwner)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("new-owner: %w", err)
	}

	data, err := funcTransferOwnership.EncodeArgs(newOwner)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to encode transferOwnership: %w", err)
	}

	receipt, err := s.chain.Transact(ctx, target, data)
	if err != nil {
		return stepOutcome{}, err
	}

	owner, err := s.owner(ctx, target)
	if err != nil {
		return stepOutcome{}, err
	}
	if owner != newOwner {
		return stepOutcome{}, fmt.Errorf("owner of %s is %s after transfer, expected %s", target.Hex(), owner.Hex(), newOwner.Hex())
	}

	return stepOutcome{address: newOwner, txHash: receiptHash(receipt)}, nil
}

func (s *Sequencer) call(ctx context.Context, step Step) (stepOutcome, error) {
	target, err := s.resolveAddress(step.Target)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("target: %w", err)
	}

	data, err := s.encodeCall(Call{Contract: step.Contract, Method: step.Method, Args: step.Args})
	if err != nil {
		return stepOutcome{}, err
	}

	receipt, err := s.chain.Transact(ctx, target, data)
	if err != nil {
		return stepOutcome{}, err
	}

	return stepOutcome{address: target, txHash: receiptHash(receipt)}, nil
}

// safeCall proposes the call to a Safe and waits for the owners to execute it.
func (s *Sequencer) safeCall(ctx context.Context, step Step) (stepOutcome, error) {
	if s.proposer == nil || s.waiter == nil {
		return stepOutcome{}, fmt.Errorf("%s needs a safe transaction service for this network", ActionSafeCall)
	}

	safeAddress, err := s.resolveAddress(step.Safe)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("safe: %w", err)
	}

	target, err := s.resolveAddress(step.Target)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("target: %w", err)
	}

	data, err := s.encodeCall(Call{Contract: step.Contract, Method: step.Method, Args: step.Args})
	if err != nil {
		return stepOutcome{}, err
	}

	safeTxHash, err := s.proposer.Propose(ctx, safeAddress, safe.Call{To: target, Data: data})
	if err != nil {
		return stepOutcome{}, err
	}

	s.logger.
		With("step", step.Name).
		With("safe", safeAddress.Hex()).
		With("safe_tx_hash", safeTxHash.Hex()).
		Info("waiting for safe owners to execute")

	executed, err := s.waiter.Wait(ctx, safeTxHash)
	if err != nil {
		return stepOutcome{}, err
	}

	return stepOutcome{address: target, txHash: executed.TransactionHash}, nil
}

func (s *Sequencer) encodeCall(call Call) ([]byte, error) {
	artifact := s.artifacts.Get(call.Contract)

	method, ok := artifact.ABI.Methods[call.Method]
	if !ok {
		return nil, fmt.Errorf("%s has no method %q", call.Contract, call.Method)
	}

	args, err := convertArgs(method.Inputs, call.Args, s.resolveAddress)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", call.Contract, call.Method, err)
	}

	data, err := artifact.ABI.Pack(call.Method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s.%s: %w", call.Contract, call.Method, err)
	}

	return data, nil
}

func (s *Sequencer) owner(ctx context.Context, target common.Address) (common.Address, error) {
	data, err := funcOwner.EncodeArgs()
	if err != nil {
		return common.Address{}, err
	}

	out, err := s.chain.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read owner of %s: %w", target.Hex(), err)
	}

	var owner common.Address
	if err := funcOwner.DecodeReturns(out, &owner); err != nil {
		return common.Address{}, fmt.Errorf("failed to decode owner: %w", err)
	}

	return owner, nil
}

func (s *Sequencer) resolveAddress(expr string) (common.Address, error) {
	expr = strings.TrimSpace(expr)

	switch {
	case expr == deployerRef:
		return s.chain.From(), nil
	case strings.HasPrefix(expr, "0x"):
		if !common.IsHexAddress(expr) {
			return common.Address{}, fmt.Errorf("invalid address %q", expr)
		}
		return common.HexToAddress(expr), nil
	default:
		return s.store.Get(strings.TrimPrefix(expr, "@"), s.network)
	}
}

// receiptHash tolerates backends that confirm without returning a receipt.
func receiptHash(receipt *types.Receipt) common.Hash {
	if receipt == nil {
		return common.Hash{}
	}
	return receipt.TxHash
}
