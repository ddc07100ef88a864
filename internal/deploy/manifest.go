package deploy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/compose-network/deploykit/internal/identifier"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

type Action string

const (
	ActionDeploy            Action = "deploy"
	ActionDeployProxy       Action = "deploy-proxy"
	ActionRegister          Action = "register"
	ActionTransferOwnership Action = "transfer-ownership"
	ActionCall              Action = "call"
	ActionSafeCall          Action = "safe-call"
)

var actions = map[Action]struct{}{
	ActionDeploy:            {},
	ActionDeployProxy:       {},
	ActionRegister:          {},
	ActionTransferOwnership: {},
	ActionCall:              {},
	ActionSafeCall:          {},
}

type (
	// Manifest is an ordered list of named deployment steps.
	Manifest struct {
		Network string `yaml:"network"`
		// Signer is the role whose key sends the transactions.
		Signer string `yaml:"signer"`
		Steps  []Step `yaml:"steps"`
	}

	Step struct {
		Name      string       `yaml:"name"`
		Action    Action       `yaml:"action"`
		DependsOn []string     `yaml:"depends-on"`
		Contract  contracts.ID `yaml:"contract"`
		Args      []string     `yaml:"args"`
		// SaveAs is the address-store key the step's output address is persisted under.
		SaveAs string `yaml:"save-as"`

		// deploy-proxy
		Logic string `yaml:"logic"`
		Admin string `yaml:"admin"`
		Init  *Call  `yaml:"init"`

		// register
		Registry string `yaml:"registry"`
		ID       string `yaml:"id"`
		Address  string `yaml:"address"`

		// transfer-ownership, call, safe-call
		Target   string `yaml:"target"`
		NewOwner string `yaml:"new-owner"`
		Method   string `yaml:"method"`
		Safe     string `yaml:"safe"`
	}

	// Call is a method invocation encoded with a contract's ABI.
	Call struct {
		Contract contracts.ID `yaml:"contract"`
		Method   string       `yaml:"method"`
		Args     []string     `yaml:"args"`
	}
)

// Fingerprint hashes the step definition. Ordering metadata (depends-on) is
// left out, so reordering a manifest keeps its journal records valid.
func (s Step) Fingerprint() (string, error) {
	definition := s
	definition.DependsOn = nil

	raw, err := yaml.Marshal(definition)
	if err != nil {
		return "", fmt.Errorf("failed to encode step %s: %w", s.Name, err)
	}

	return crypto.Keccak256Hash(raw).Hex(), nil
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	return manifest, nil
}

func ParseManifest(data []byte) (Manifest, error) {
	var manifest Manifest

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return Manifest{}, err
	}

	return manifest, nil
}

// Validate reports every problem in the manifest at once.
func (m Manifest) Validate() error {
	var errs []error

	if len(m.Steps) == 0 {
		errs = append(errs, errors.New("manifest has no steps"))
	}

	seen := make(map[string]struct{}, len(m.Steps))
	savedBy := make(map[string]string)

	for i, step := range m.Steps {
		where := fmt.Sprintf("step %d", i+1)
		if step.Name != "" {
			where = fmt.Sprintf("step %q", step.Name)
		}

		for _, err := range step.validate() {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}

		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				errs = append(errs, fmt.Errorf("%s: depends on %q which is not an earlier step", where, dep))
			}
		}

		if step.Name != "" {
			if _, dup := seen[step.Name]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate step name", where))
			}
			seen[step.Name] = struct{}{}
		}

		if step.SaveAs != "" {
			if other, dup := savedBy[step.SaveAs]; dup {
				errs = append(errs, fmt.Errorf("%s: save-as %q already used by step %q", where, step.SaveAs, other))
			}
			savedBy[step.SaveAs] = step.Name
		}
	}

	return errors.Join(errs...)
}

// Index returns the position of the named step, or -1.
func (m Manifest) Index(name string) int {
	for i, step := range m.Steps {
		if step.Name == name {
			return i
		}
	}
	return -1
}

func (s Step) validate() []error {
	var errs []error
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s requires %s", s.Action, field))
		}
	}

	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if _, ok := actions[s.Action]; !ok {
		return append(errs, fmt.Errorf("unknown action %q", s.Action))
	}

	switch s.Action {
	case ActionDeploy:
		errs = append(errs, validateContract(s.Contract)...)
		require("save-as", s.SaveAs)
	case ActionDeployProxy:
		require("logic", s.Logic)
		require("admin", s.Admin)
		require("save-as", s.SaveAs)
		if s.Init != nil {
			errs = append(errs, s.Init.validate()...)
		}
	case ActionRegister:
		require("registry", s.Registry)
		require("id", s.ID)
		require("address", s.Address)
		if _, err := identifier.Encode(s.ID); err != nil {
			errs = append(errs, err)
		}
	case ActionTransferOwnership:
		require("target", s.Target)
		require("new-owner", s.NewOwner)
	case ActionCall:
		require("target", s.Target)
		errs = append(errs, Call{Contract: s.Contract, Method: s.Method}.validate()...)
	case ActionSafeCall:
		require("safe", s.Safe)
		require("target", s.Target)
		errs = append(errs, Call{Contract: s.Contract, Method: s.Method}.validate()...)
	}

	return errs
}

func (c Call) validate() []error {
	errs := validateContract(c.Contract)
	if c.Method == "" {
		errs = append(errs, errors.New("method is required"))
	}
	return errs
}

func validateContract(id contracts.ID) []error {
	if id == "" {
		return []error{errors.New("contract is required")}
	}
	if _, err := contracts.ParseID(string(id)); err != nil {
		return []error{err}
	}
	return nil
}
