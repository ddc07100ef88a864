// Package fork runs a local anvil node that forks a live network at a pinned
// block, and funds test accounts on it from known token holders.
package fork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/deploykit/internal/chain"
	"github.com/compose-network/deploykit/internal/logger"
)

const (
	DefaultImage = "ghcr.io/foundry-rs/foundry:latest"
	DefaultPort  = 8545

	stateDir      = "/tmp/anvil"
	stateFileName = "state.json"
	loadStatePath = "/tmp/anvil-load/" + stateFileName
	stopTimeout   = 30 * time.Second
)

// ErrNotRunning is returned when stopping a fork that has no container.
var ErrNotRunning = errors.New("fork node is not running")

type (
	containerRuntime interface {
		EnsureImage(ctx context.Context, imageName string) error
		StartContainer(ctx context.Context, spec ContainerSpec) (string, error)
		StopContainer(ctx context.Context, id string, timeout time.Duration) error
		CopyOut(ctx context.Context, id, srcPath, destDir string) error
		RemoveContainer(ctx context.Context, id string) error
	}

	Options struct {
		Network   string
		ForkURL   string
		ForkBlock uint64
		// ChainID of 0 keeps the forked chain's ID.
		ChainID uint64
		Image   string
		Port    int
		// LoadState is a host state file, as saved by Stop, to start from.
		LoadState string
	}

	Instance struct {
		Name        string
		ContainerID string
		RPCURL      string
	}

	Node struct {
		runtime       containerRuntime
		waitReady     func(ctx context.Context, url string) error
		readyAttempts int
		readyInterval time.Duration
		logger        *slog.Logger
	}
)

func NewNode(runtime containerRuntime, log *slog.Logger) *Node {
	n := &Node{
		runtime:       runtime,
		readyAttempts: 60,
		readyInterval: time.Second,
		logger:        logger.Named(log, "fork"),
	}
	n.waitReady = func(ctx context.Context, url string) error {
		return chain.WaitForRPC(ctx, url, n.readyAttempts, n.readyInterval)
	}
	return n
}

// SavedStatePath is where Stop leaves a network's state under dumpDir.
func SavedStatePath(dumpDir, network string) string {
	return filepath.Join(dumpDir, strings.ToLower(strings.TrimSpace(network)), stateFileName)
}

// ContainerName is the fixed container name of a network's fork, so that
// separate invocations can find it.
func ContainerName(network string) string {
	return "deploykit-fork-" + strings.ToLower(strings.TrimSpace(network))
}

// Start launches anvil forking opts.ForkURL and waits for its RPC.
func (n *Node) Start(ctx context.Context, opts Options) (Instance, error) {
	if opts.ForkURL == "" {
		return Instance{}, errors.New("fork url is required")
	}
	if opts.Image == "" {
		opts.Image = DefaultImage
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	log := n.logger.With("network", opts.Network).With("fork_block", opts.ForkBlock)

	if err := n.runtime.EnsureImage(ctx, opts.Image); err != nil {
		return Instance{}, err
	}

	spec := ContainerSpec{
		Name:       ContainerName(opts.Network),
		Image:      opts.Image,
		Entrypoint: []string{"anvil"},
		Cmd:        anvilArgs(opts),
		Port:       opts.Port,
	}

	if opts.LoadState != "" {
		source, err := filepath.Abs(opts.LoadState)
		if err != nil {
			return Instance{}, fmt.Errorf("invalid state file %s: %w", opts.LoadState, err)
		}
		if _, err := os.Stat(source); err != nil {
			return Instance{}, fmt.Errorf("state file: %w", err)
		}
		spec.Mounts = append(spec.Mounts, Mount{Source: source, Target: loadStatePath, ReadOnly: true})
		log = log.With("state", source)
	}

	id, err := n.runtime.StartContainer(ctx, spec)
	if err != nil {
		return Instance{}, err
	}

	instance := Instance{
		Name:        spec.Name,
		ContainerID: id,
		RPCURL:      fmt.Sprintf("http://127.0.0.1:%d", opts.Port),
	}

	log.With("rpc_url", instance.RPCURL).Info("waiting for fork node")

	if err := n.waitReady(ctx, instance.RPCURL); err != nil {
		_ = n.runtime.RemoveContainer(context.WithoutCancel(ctx), id)
		return Instance{}, fmt.Errorf("fork node did not become ready: %w", err)
	}

	log.With("rpc_url", instance.RPCURL).Info("fork node ready")

	return instance, nil
}

// Stop stops the network's fork. When dumpDir is set, anvil's state dump is
// copied to SavedStatePath(dumpDir, network) before the container is removed.
func (n *Node) Stop(ctx context.Context, network, dumpDir string) error {
	name := ContainerName(network)
	log := n.logger.With("container", name)

	if err := n.runtime.StopContainer(ctx, name, stopTimeout); err != nil {
		return err
	}

	if dumpDir != "" {
		target := filepath.Dir(SavedStatePath(dumpDir, network))
		if err := n.runtime.CopyOut(ctx, name, stateDir+"/"+stateFileName, target); err != nil {
			return err
		}
		log.With("path", SavedStatePath(dumpDir, network)).Info("fork state saved")
	}

	if err := n.runtime.RemoveContainer(ctx, name); err != nil {
		return err
	}

	log.Info("fork node stopped")

	return nil
}

func anvilArgs(opts Options) []string {
	args := []string{
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(opts.Port),
		"--fork-url", opts.ForkURL,
		"--dump-state", stateDir + "/" + stateFileName,
	}

	if opts.ForkBlock != 0 {
		args = append(args, "--fork-block-number", strconv.FormatUint(opts.ForkBlock, 10))
	}
	if opts.ChainID != 0 {
		args = append(args, "--chain-id", strconv.FormatUint(opts.ChainID, 10))
	}
	if opts.LoadState != "" {
		args = append(args, "--load-state", loadStatePath)
	}

	return args
}
