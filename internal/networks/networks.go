// Package networks holds the read-only per-network catalog of third party
// addresses (stablecoins, price feeds, whales) that scripts and tests share.
package networks

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed networks.yaml
	catalogYAML []byte

	catalogOnce sync.Once
	catalog     Catalog
	catalogErr  error
)

type (
	// Catalog maps canonical network names to their configuration.
	Catalog map[string]Network

	Network struct {
		Name            string                `yaml:"-"`
		ChainID         uint64                `yaml:"chain-id"`
		ForkBlockNumber uint64                `yaml:"fork-block-number"`
		Stablecoins     map[string]Token      `yaml:"stablecoins"`
		Aggregators     map[string]HexAddress `yaml:"aggregators"`
		Whales          map[string]HexAddress `yaml:"whales"`
	}

	Token struct {
		Address  HexAddress `yaml:"address"`
		Decimals uint8      `yaml:"decimals"`
	}

	// HexAddress decodes a YAML string into an address, rejecting malformed hex.
	HexAddress common.Address
)

func (a *HexAddress) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("line %d: invalid address %q", node.Line, s)
	}
	*a = HexAddress(common.HexToAddress(s))
	return nil
}

func (a HexAddress) Address() common.Address {
	return common.Address(a)
}

// Canonical is the uppercase network name used for env vars, record files,
// journal buckets and catalog keys.
func Canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Parse decodes a catalog document.
func Parse(data []byte) (Catalog, error) {
	var raw Catalog

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode network catalog: %w", err)
	}

	out := make(Catalog, len(raw))
	for name, network := range raw {
		canonical := Canonical(name)
		network.Name = canonical
		out[canonical] = network
	}

	return out, nil
}

// Default returns the embedded catalog.
func Default() (Catalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = Parse(catalogYAML)
	})

	return catalog, catalogErr
}

// Get looks up a network by name, case-insensitively.
func (c Catalog) Get(name string) (Network, error) {
	network, ok := c[Canonical(name)]
	if !ok {
		return Network{}, fmt.Errorf("network %q is not in the catalog (known: %s)", name, strings.Join(c.Names(), ", "))
	}
	return network, nil
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n Network) Stablecoin(symbol string) (Token, error) {
	token, ok := n.Stablecoins[strings.ToUpper(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("no stablecoin %q configured for %s", symbol, n.Name)
	}
	return token, nil
}

func (n Network) Whale(symbol string) (common.Address, error) {
	whale, ok := n.Whales[strings.ToUpper(symbol)]
	if !ok {
		return common.Address{}, fmt.Errorf("no whale for %q configured for %s", symbol, n.Name)
	}
	return whale.Address(), nil
}

func (n Network) Aggregator(name string) (common.Address, error) {
	agg, ok := n.Aggregators[strings.ToUpper(name)]
	if !ok {
		return common.Address{}, fmt.Errorf("no aggregator %q configured for %s", name, n.Name)
	}
	return agg.Address(), nil
}
