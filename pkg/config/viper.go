package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

const (
	// EnvPrefix prefixes every environment override, e.g. PARLEY_PROXY_LISTEN.
	EnvPrefix = "PARLEY"

	// APIKeyEnv is the only source of the upstream credential.
	APIKeyEnv = "PARLEY_API_KEY"

	// KeyAPIKey is the viper key the credential is bound to. It is not a
	// config.toml key and cannot be set with "parley config set".
	KeyAPIKey = "api_key"
)

// InitViper returns a viper instance resolving every config key with this
// precedence, highest first:
//  1. CLI flags, once bound with BindRegisteredFlags
//  2. PARLEY_* environment variables (PARLEY_PROXY_MODEL, ...)
//  3. config.toml in the resolved .parley/ directory
//  4. NewDefaultConfig
func InitViper(configDir string) (*viper.Viper, error) {
	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	v := viper.New()
	setViperDefaults(v)

	// A missing config.toml leaves the defaults in place.
	if path := filepath.Join(dir, configFile); dir != "" && fileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv(KeyAPIKey, APIKeyEnv); err != nil {
		return nil, fmt.Errorf("binding %s: %w", APIKeyEnv, err)
	}

	return v, nil
}

// setViperDefaults registers the NewDefaultConfig value of every config key.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for _, k := range configKeys {
		v.SetDefault(k.name, k.get(d))
	}
}

// GetStringList reads a list key that may come from TOML as an array or from
// the environment or a flag as a comma separated string.
func GetStringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		out = append(out, splitList(item)...)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
