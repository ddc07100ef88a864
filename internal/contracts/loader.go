package contracts

import (
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const contractsFileName = "contracts.json"

//go:embed compiled/contracts.json
var compiledContractsFS embed.FS

// Set is a complete collection of artifacts, one per ID.
type Set map[ID]Artifact

// Get never fails for a Set produced by Load.
func (s Set) Get(id ID) Artifact {
	return s[id]
}

// Load reads artifacts from path, or the embedded file when path is empty.
func Load(path string) (Set, error) {
	var (
		data []byte
		err  error
	)

	if path == "" {
		data, err = compiledContractsFS.ReadFile("compiled/" + contractsFileName)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded contracts: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read contracts from %s: %w", path, err)
		}
	}

	return parseContracts(data)
}

// parseContracts parses contract JSON data into a Set. Entries outside the
// known IDs are ignored; a known ID missing from the file is an error.
func parseContracts(data []byte) (Set, error) {
	var result map[string]struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode string          `json:"bytecode"`
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse compiled contracts: %w", err)
	}

	loaded := make(Set, len(Contracts))

	for name, contract := range result {
		id := ID(name)
		if _, ok := Contracts[id]; !ok {
			continue
		}

		parsedABI, err := abi.JSON(strings.NewReader(string(contract.ABI)))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}

		bytecode, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(contract.Bytecode), "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to decode bytecode for %s: %w", name, err)
		}

		loaded[id] = Artifact{
			ID:       id,
			ABI:      parsedABI,
			RawABI:   string(contract.ABI),
			Bytecode: bytecode,
		}
	}

	var missing []string
	for _, id := range IDs() {
		if _, ok := loaded[id]; !ok {
			missing = append(missing, string(id))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("compiled contracts are missing: %s", strings.Join(missing, ", "))
	}

	return loaded, nil
}
