package configs

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

//go:embed config.example.yaml
var defaultConfigYAML string

// MergeDefaults loads the embedded config.example.yaml into v as the base layer
// that a config file found later is merged over.
func MergeDefaults(v *viper.Viper) error {
	v.SetConfigType("yaml")
	if err := v.MergeConfig(strings.NewReader(defaultConfigYAML)); err != nil {
		return fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
	}
	return nil
}
