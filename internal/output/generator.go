// Package output renders a network's deployed addresses, with the ABI of each
// contract where it is known, as a YAML document for frontends and test suites.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type (
	Model struct {
		Network   string                    `yaml:"network"`
		ChainID   uint64                    `yaml:"chain-id,omitempty"`
		RPCURL    string                    `yaml:"rpc-url,omitempty"`
		Contracts map[string]ContractConfig `yaml:"contracts"`
	}

	ContractConfig struct {
		Address  string             `yaml:"address"`
		Contract contracts.ID       `yaml:"contract,omitempty"`
		ABI      SingleQuotedString `yaml:"abi,omitempty"`
	}

	SingleQuotedString string

	Network struct {
		Name    string
		ChainID uint64
		RPCURL  string
	}
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}

// Generate builds the document for the stored addresses of network. A key is
// matched to the longest contract ID it starts with, so "TvlManagerLogic"
// carries the TvlManager ABI.
func Generate(network Network, stored map[string]common.Address, artifacts contracts.Set) ([]byte, error) {
	model := Model{
		Network:   network.Name,
		ChainID:   network.ChainID,
		RPCURL:    network.RPCURL,
		Contracts: make(map[string]ContractConfig, len(stored)),
	}

	for key, address := range stored {
		entry := ContractConfig{Address: address.Hex()}

		if id, ok := matchID(key); ok {
			if artifact, found := artifacts[id]; found && artifact.RawABI != "" {
				entry.Contract = id
				entry.ABI = SingleQuotedString(compactJSON(artifact.RawABI))
			}
		}

		model.Contracts[key] = entry
	}

	data, err := yaml.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("could not marshal output model: %w", err)
	}

	return data, nil
}

func matchID(key string) (contracts.ID, bool) {
	ids := contracts.IDs()
	sort.Slice(ids, func(i, j int) bool { return len(ids[i]) > len(ids[j]) })

	for _, id := range ids {
		if strings.HasPrefix(key, string(id)) {
			return id, true
		}
	}
	return "", false
}

func compactJSON(jsonStr string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
