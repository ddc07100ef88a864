// Package deploy runs deployment manifests: ordered, named steps that deploy
// contracts, wire proxies, register addresses and hand over ownership.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/compose-network/deploykit/internal/journal"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/networks"
	"github.com/compose-network/deploykit/internal/safe"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

/*
Sequencer executes a manifest step by step on one network
  - A step runs only after every earlier step finished; nothing is sent in parallel
  - A step is skipped when the journal has a record with the same step definition,
    or when its save-as key is already stored
  - Step outputs are persisted right after confirmation, so a failed run resumes where it stopped
*/
type (
	Chain interface {
		From() common.Address
		Deploy(ctx context.Context, artifact contracts.Artifact, args ...any) (common.Address, *types.Receipt, error)
		Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
		CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}

	AddressStore interface {
		Update(network string, patch map[string]common.Address) error
		Get(key, network string) (common.Address, error)
		Lookup(key, network string) (common.Address, bool, error)
	}

	Journal interface {
		Record(network string, record journal.StepRecord) error
		Completed(network, step, fingerprint string) (journal.StepRecord, bool, error)
	}

	SafeProposer interface {
		Propose(ctx context.Context, safe common.Address, call safe.Call) (common.Hash, error)
	}

	SafeWaiter interface {
		Wait(ctx context.Context, safeTxHash common.Hash) (safe.ExecutionResult, error)
	}

	Sequencer struct {
		network   string
		chain     Chain
		artifacts contracts.Set
		store     AddressStore
		journal   Journal
		proposer  SafeProposer
		waiter    SafeWaiter
		logger    *slog.Logger
	}

	Options struct {
		// From skips every step before the named one.
		From string
		// Only runs exactly the named step. Its dependencies must be complete.
		Only string
		// DryRun reports the plan without sending anything.
		DryRun bool
	}

	StepStatus string

	StepResult struct {
		Name    string
		Action  Action
		Status  StepStatus
		Address common.Address
		TxHash  common.Hash
	}

	Result struct {
		RunID    string
		Network  string
		Progress Progress
		Steps    []StepResult
	}

	// StepError is returned when a step fails; steps before it stay persisted.
	StepError struct {
		Step  string
		Index int
		Err   error
	}
)

const (
	StatusExecuted StepStatus = "executed"
	StatusSkipped  StepStatus = "skipped"
	StatusPending  StepStatus = "pending"
	StatusOutside  StepStatus = "not selected"
	StatusFailed   StepStatus = "failed"
)

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func NewSequencer(
	network string,
	chain Chain,
	artifacts contracts.Set,
	store AddressStore,
	journal Journal,
	log *slog.Logger,
) *Sequencer {
	network = networks.Canonical(network)
	return &Sequencer{
		network:   network,
		chain:     chain,
		artifacts: artifacts,
		store:     store,
		journal:   journal,
		logger:    logger.Named(log, "sequencer").With("network", network),
	}
}

// WithSafe enables safe-call steps.
func (s *Sequencer) WithSafe(proposer SafeProposer, waiter SafeWaiter) *Sequencer {
	s.proposer = proposer
	s.waiter = waiter
	return s
}

// Run executes manifest. On failure the returned Result still describes the
// steps that completed before the error.
func (s *Sequencer) Run(ctx context.Context, manifest Manifest, opts Options) (Result, error) {
	result := Result{
		RunID:    journal.NewRunID(),
		Network:  s.network,
		Progress: Progress{Total: len(manifest.Steps)},
	}

	if err := manifest.Validate(); err != nil {
		return result, fmt.Errorf("invalid manifest: %w", err)
	}

	if manifest.Network != "" && networks.Canonical(manifest.Network) != s.network {
		return result, fmt.Errorf("manifest targets %s but the selected network is %s", networks.Canonical(manifest.Network), s.network)
	}

	selected, err := s.selection(manifest, opts)
	if err != nil {
		return result, err
	}

	log := s.logger.With("run_id", result.RunID)
	log.With("steps", len(manifest.Steps)).With("dry_run", opts.DryRun).Info("starting deployment run")

	for i, step := range manifest.Steps {
		stepLog := log.With("step", step.Name).With("index", i+1)

		done, previous, err := s.completed(step)
		if err != nil {
			return result, &StepError{Step: step.Name, Index: i, Err: err}
		}

		if done {
			result.Progress.Completed++
			result.Steps = append(result.Steps, StepResult{
				Name:    step.Name,
				Action:  step.Action,
				Status:  StatusSkipped,
				Address: previous.Address,
				TxHash:  previous.TxHash,
			})
			if selected(i) {
				stepLog.Info("step already completed, skipping")
			}
			continue
		}

		if !selected(i) {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Action: step.Action, Status: StatusOutside})
			continue
		}

		if opts.DryRun {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Action: step.Action, Status: StatusPending})
			continue
		}

		if err := s.dependenciesMet(manifest, step); err != nil {
			return result, &StepError{Step: step.Name, Index: i, Err: err}
		}

		stepLog.With("action", step.Action).Info("running step")

		outcome, err := s.execute(ctx, step)
		if err != nil {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Action: step.Action, Status: StatusFailed})
			stepLog.With("err", err).Error("step failed")
			return result, &StepError{Step: step.Name, Index: i, Err: err}
		}

		if err := s.persist(result.RunID, step, outcome); err != nil {
			return result, &StepError{Step: step.Name, Index: i, Err: err}
		}

		result.Progress.Completed++
		result.Steps = append(result.Steps, StepResult{
			Name:    step.Name,
			Action:  step.Action,
			Status:  StatusExecuted,
			Address: outcome.address,
			TxHash:  outcome.txHash,
		})

		stepLog.With("progress", result.Progress.String()).Info("step completed")
	}

	log.With("progress", result.Progress.String()).Info("deployment run finished")

	return result, nil
}

func (s *Sequencer) selection(manifest Manifest, opts Options) (func(int) bool, error) {
	if opts.From != "" && opts.Only != "" {
		return nil, errors.New("from and only are mutually exclusive")
	}

	switch {
	case opts.Only != "":
		only := manifest.Index(opts.Only)
		if only < 0 {
			return nil, fmt.Errorf("manifest has no step %q", opts.Only)
		}
		return func(i int) bool { return i == only }, nil
	case opts.From != "":
		from := manifest.Index(opts.From)
		if from < 0 {
			return nil, fmt.Errorf("manifest has no step %q", opts.From)
		}
		return func(i int) bool { return i >= from }, nil
	default:
		return func(int) bool { return true }, nil
	}
}

// completed reports whether step already ran on this network. Journal records
// written for another definition under the same name do not count.
func (s *Sequencer) completed(step Step) (bool, journal.StepRecord, error) {
	fingerprint, err := step.Fingerprint()
	if err != nil {
		return false, journal.StepRecord{}, err
	}

	record, found, err := s.journal.Completed(s.network, step.Name, fingerprint)
	if err != nil {
		return false, journal.StepRecord{}, err
	}
	if found {
		return true, record, nil
	}

	if step.SaveAs == "" {
		return false, journal.StepRecord{}, nil
	}

	address, stored, err := s.store.Lookup(step.SaveAs, s.network)
	if err != nil {
		return false, journal.StepRecord{}, err
	}
	if !stored {
		return false, journal.StepRecord{}, nil
	}

	// the address was persisted by an earlier tool run that had no journal
	return true, journal.StepRecord{Step: step.Name, Action: string(step.Action), Address: address}, nil
}

func (s *Sequencer) dependenciesMet(manifest Manifest, step Step) error {
	var missing []error
	for _, dep := range step.DependsOn {
		i := manifest.Index(dep)
		done, _, err := s.completed(manifest.Steps[i])
		if err != nil {
			return err
		}
		if !done {
			missing = append(missing, fmt.Errorf("dependency %q has not completed", dep))
		}
	}
	return errors.Join(missing...)
}

func (s *Sequencer) persist(runID string, step Step, outcome stepOutcome) error {
	fingerprint, err := step.Fingerprint()
	if err != nil {
		return err
	}

	if step.SaveAs != "" {
		if err := s.store.Update(s.network, map[string]common.Address{step.SaveAs: outcome.address}); err != nil {
			return fmt.Errorf("failed to persist %s: %w", step.SaveAs, err)
		}
	}

	return s.journal.Record(s.network, journal.StepRecord{
		RunID:       runID,
		Step:        step.Name,
		Action:      string(step.Action),
		Address:     outcome.address,
		TxHash:      outcome.txHash,
		CompletedAt: time.Now().UTC(),
		Fingerprint: fingerprint,
	})
}
