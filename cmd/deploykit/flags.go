package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagDef defines a persistent flag bound to a viper configuration key.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	// Empty defaults leave the value to the config file or the embedded defaults.
	stringFlags = []flagDef[string]{
		{"network", "network", "", "Target network (overrides NETWORK)"},

		// Logging
		{"log-level", "log.level", "", "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", "", "Log format (json or text)"},
		{"log-file", "log.file.path", "", "Also write logs to this rotating file"},

		// Paths
		{"deployments-dir", "paths.deployments", "", "Directory holding <network>.json address files"},
		{"journal", "paths.journal", "", "Deployment journal database"},
		{"artifacts", "paths.artifacts", "", "Compiled contracts file (empty uses the embedded artifacts)"},
		{"contracts-root", "paths.contracts-root", "", "Foundry project compiled by --compile"},
	}

	intFlags = []flagDef[int]{
		{"fork-port", "fork.port", 0, "Host port of the fork node RPC"},
	}

	boolFlags = []flagDef[bool]{}
)

func init() {
	flags := rootCmd.PersistentFlags()
	if err := declareFlags(flags, stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(flags, intFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(flags, boolFlags); err != nil {
		panic(err)
	}
}

// declareFlags declares multiple flags and binds them to viper configuration keys.
func declareFlags[T flagType](flags *pflag.FlagSet, defs []flagDef[T]) error {
	for _, def := range defs {
		if err := declareFlag(flags, def.name, def.viperKey, def.defaultValue, def.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single flag and binds it to a viper configuration key.
// The type parameter T determines the flag type (string, int, or bool).
func declareFlag[T flagType](flags *pflag.FlagSet, flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		flags.String(flagName, any(defaultValue).(string), description)
	case int:
		flags.Int(flagName, any(defaultValue).(int), description)
	case bool:
		flags.Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, flags.Lookup(flagName))
}
