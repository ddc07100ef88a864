package configs

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/networks"
)

var Values Config

type (
	Config struct {
		Log logger.Config `mapstructure:"log"`
		// DefaultNetwork is the target when neither --network nor NETWORK is set.
		DefaultNetwork string             `mapstructure:"network"`
		Paths          Paths              `mapstructure:"paths"`
		Networks       map[string]Network `mapstructure:"networks"`
		Safe           Safe               `mapstructure:"safe"`
		Fork           Fork               `mapstructure:"fork"`
	}

	Paths struct {
		Deployments   string `mapstructure:"deployments"`
		Journal       string `mapstructure:"journal"`
		Artifacts     string `mapstructure:"artifacts"`
		ContractsRoot string `mapstructure:"contracts-root"`
	}

	Network struct {
		RPCURL         string        `mapstructure:"rpc-url"`
		ChainID        uint64        `mapstructure:"chain-id"`
		ForkBlock      uint64        `mapstructure:"fork-block"`
		Confirmations  uint64        `mapstructure:"confirmations"`
		GasLimit       uint64        `mapstructure:"gas-limit"`
		GasPriceGwei   string        `mapstructure:"gas-price-gwei"`
		TxTimeout      time.Duration `mapstructure:"tx-timeout"`
		SafeServiceURL string        `mapstructure:"safe-service-url"`
	}

	Safe struct {
		PollInterval    time.Duration `mapstructure:"poll-interval"`
		MaxPollInterval time.Duration `mapstructure:"max-poll-interval"`
		Timeout         time.Duration `mapstructure:"timeout"`
		RequestTimeout  time.Duration `mapstructure:"request-timeout"`
	}

	Fork struct {
		Image   string `mapstructure:"image"`
		Port    int    `mapstructure:"port"`
		DumpDir string `mapstructure:"dump-dir"`
	}

	// LookupEnv has the signature of os.LookupEnv.
	LookupEnv func(key string) (string, bool)
)

// NetworkNames lists the configured networks in canonical form.
func (c Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, networks.Canonical(name))
	}
	sort.Strings(names)
	return names
}

// Network returns the settings of name with <NETWORK>_RPC_URL and
// <NETWORK>_FORK_BLOCK from the process environment applied on top.
func (c Config) Network(name string) (Network, error) {
	return c.NetworkWithEnv(name, os.LookupEnv)
}

func (c Config) NetworkWithEnv(name string, lookup LookupEnv) (Network, error) {
	canonical := networks.Canonical(name)
	if canonical == "" {
		return Network{}, errors.New("no network selected: set NETWORK or pass --network")
	}

	var (
		network Network
		found   bool
	)
	// viper lowercases map keys
	for key, candidate := range c.Networks {
		if networks.Canonical(key) == canonical {
			network, found = candidate, true
			break
		}
	}

	if value, ok := lookup(canonical + "_RPC_URL"); ok && value != "" {
		network.RPCURL = value
		found = true
	}
	if value, ok := lookup(canonical + "_FORK_BLOCK"); ok && value != "" {
		block, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Network{}, fmt.Errorf("%s_FORK_BLOCK: invalid block number %q", canonical, value)
		}
		network.ForkBlock = block
	}

	if !found {
		return Network{}, fmt.Errorf("network %q is not configured (known: %s)", canonical, strings.Join(c.NetworkNames(), ", "))
	}

	if err := network.Validate(canonical); err != nil {
		return Network{}, err
	}

	return network, nil
}

func (n Network) Validate(name string) error {
	var errs []error

	if n.RPCURL == "" {
		errs = append(errs, fmt.Errorf("networks.%s.rpc-url is required (or set %s_RPC_URL)", strings.ToLower(name), name))
	}
	if n.Confirmations == 0 {
		errs = append(errs, fmt.Errorf("networks.%s.confirmations must be at least 1", strings.ToLower(name)))
	}

	if len(errs) > 0 {
		return fmt.Errorf("network %s configuration validation failed: %w", name, errors.Join(errs...))
	}

	return nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Log.Level.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "" && c.Log.Format != logger.FormatJSON && c.Log.Format != logger.FormatText {
		errs = append(errs, fmt.Errorf("log.format must be either '%s' or '%s'", logger.FormatJSON, logger.FormatText))
	}

	if c.Paths.Deployments == "" {
		errs = append(errs, errors.New("paths.deployments is required"))
	}
	if c.Paths.Journal == "" {
		errs = append(errs, errors.New("paths.journal is required"))
	}

	if c.Safe.PollInterval <= 0 {
		errs = append(errs, errors.New("safe.poll-interval must be positive"))
	}
	if c.Safe.MaxPollInterval < c.Safe.PollInterval {
		errs = append(errs, errors.New("safe.max-poll-interval must not be below safe.poll-interval"))
	}
	if c.Safe.Timeout <= 0 {
		errs = append(errs, errors.New("safe.timeout must be positive"))
	}

	if c.Fork.Port < 1 || c.Fork.Port > 65535 {
		errs = append(errs, fmt.Errorf("fork.port %d is out of range", c.Fork.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}
