package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// preset is an upstream provider that `parley init --preset` knows about.
type preset struct {
	upstream string
	model    string
}

var presets = map[string]preset{
	"bytez":      {upstream: "https://api.bytez.com/v1", model: "openai/gpt-4.1"},
	"openai":     {upstream: "https://api.openai.com/v1", model: "gpt-4.1"},
	"openrouter": {upstream: "https://openrouter.ai/api/v1", model: "openai/gpt-4.1"},
}

// Configer reads and writes config.toml inside a resolved .parley/ directory.
type Configer struct {
	// path is empty when no .parley/ directory could be resolved.
	path string
}

func NewConfiger(override string) (*Configer, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return &Configer{}, nil
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return &Configer{path: path}, nil
}

// ValidConfigKeys returns every supported key in the order of the TOML layout.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for _, k := range configKeys {
		keys = append(keys, k.name)
	}
	return keys
}

func IsValidConfigKey(key string) bool {
	_, ok := lookupKey(key)
	return ok
}

// GetTarget returns the config.toml path, or "" when no .parley/ directory
// was resolved.
func (c *Configer) GetTarget() string {
	return c.path
}

// LoadConfig reads config.toml. Keys missing from the file, or the whole file
// when it does not exist yet, take their default values.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.path == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewDefaultConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	for _, k := range configKeys {
		if k.get(cfg) != "" {
			continue
		}
		if v := k.get(defaults); v != "" {
			// Defaults always pass validation.
			_ = k.set(cfg, v)
		}
	}
}

// SaveConfig writes cfg to config.toml, replacing the previous file.
func (c *Configer) SaveConfig(cfg *Config) error {
	switch {
	case cfg == nil:
		return errors.New("cannot save nil config")
	case c.path == "":
		return errors.New("cannot save config: no .parley directory found, run parley init")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue validates value for key and stores it in config.toml.
func (c *Configer) SetConfigValue(key, value string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := k.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue returns the effective value of key, defaults included.
func (c *Configer) GetConfigValue(key string) (string, error) {
	k, err := keyFor(key)
	if err != nil {
		return "", err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return k.get(cfg), nil
}

func keyFor(name string) (configKey, error) {
	k, ok := lookupKey(name)
	if !ok {
		return configKey{}, fmt.Errorf("unknown config key: %q", name)
	}
	return k, nil
}

// PresetConfig returns the default config pointed at the named upstream
// provider. The name is case-insensitive.
func PresetConfig(name string) (*Config, error) {
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	cfg := NewDefaultConfig()
	cfg.Proxy.Upstream = p.upstream
	cfg.Proxy.Model = p.model
	return cfg, nil
}

// ValidPresetNames returns the preset names in alphabetical order.
func ValidPresetNames() []string {
	return slices.Sorted(maps.Keys(presets))
}

// ParseConfigTOML decodes config.toml content. A version other than the
// current one is rejected.
func ParseConfigTOML(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	return &cfg, nil
}
