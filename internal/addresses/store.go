// Package addresses persists the addresses produced by deployments, one flat
// JSON object per network, so later runs can resolve their dependencies.
package addresses

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/deploykit/internal/infra/filesystem"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/networks"
	"github.com/ethereum/go-ethereum/common"
)

// ErrKeyNotFound is returned by Get when a dependency address was never
// recorded. Callers treat it as a configuration error: a prerequisite
// deployment was skipped.
var ErrKeyNotFound = errors.New("address not found")

// Store reads and writes <dir>/<network>.json. There is no locking: runs
// against the same network are expected to be sequential.
type Store struct {
	dir    string
	reader filesystem.Reader
	writer filesystem.Writer
	logger *slog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, reader filesystem.Reader, writer filesystem.Writer, log *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		reader: reader,
		writer: writer,
		logger: logger.Named(log, "address_store"),
	}
}

// Path returns the file backing a network.
func (s *Store) Path(network string) string {
	return filepath.Join(s.dir, strings.ToLower(networks.Canonical(network))+".json")
}

// Update merges patch into the stored object for network. Keys missing from
// patch are kept; keys present are overwritten.
func (s *Store) Update(network string, patch map[string]common.Address) error {
	if networks.Canonical(network) == "" {
		return errors.New("network name is required")
	}

	current, err := s.read(network)
	if err != nil {
		return err
	}

	for key, addr := range patch {
		if key == "" {
			return errors.New("contract key must not be empty")
		}
		if previous, ok := current[key]; ok && previous != addr {
			s.logger.Warn("overwriting stored address",
				"network", networks.Canonical(network), "key", key, "previous", previous.Hex(), "address", addr.Hex())
		}
		current[key] = addr
	}

	out := make(map[string]string, len(current))
	for key, addr := range current {
		out[key] = addr.Hex()
	}

	path := s.Path(network)
	if err := s.writer.WriteJSON(path, out); err != nil {
		return fmt.Errorf("failed to write addresses for %s: %w", networks.Canonical(network), err)
	}

	s.logger.Debug("addresses updated", "network", networks.Canonical(network), "path", path, "keys", len(patch))

	return nil
}

// Get returns the address stored under key. A missing file or key is an error
// wrapping ErrKeyNotFound.
func (s *Store) Get(key, network string) (common.Address, error) {
	addr, ok, err := s.Lookup(key, network)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %q on %s (%s)", ErrKeyNotFound, key, networks.Canonical(network), s.Path(network))
	}

	return addr, nil
}

// Lookup is the tolerant variant of Get. Only read and decode failures are
// errors; an absent key reports ok=false.
func (s *Store) Lookup(key, network string) (common.Address, bool, error) {
	current, err := s.read(network)
	if err != nil {
		return common.Address{}, false, err
	}

	addr, ok := current[key]

	return addr, ok, nil
}

// All returns every record for network. Networks without a file are empty.
func (s *Store) All(network string) (map[string]common.Address, error) {
	return s.read(network)
}

func (s *Store) read(network string) (map[string]common.Address, error) {
	path := s.Path(network)

	raw := make(map[string]string)
	if err := s.reader.ReadJSON(path, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]common.Address), nil
		}
		return nil, fmt.Errorf("failed to read addresses for %s: %w", networks.Canonical(network), err)
	}

	out := make(map[string]common.Address, len(raw))
	for key, value := range raw {
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("invalid address %q for key %q in %s", value, key, path)
		}
		out[key] = common.HexToAddress(value)
	}

	return out, nil
}
