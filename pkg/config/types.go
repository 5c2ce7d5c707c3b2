package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config represents the persistent parley configuration stored as config.toml
// in the .parley/ directory. The TOML layout uses sections for logical
// grouping. The upstream API key is never part of it; it comes from the
// PARLEY_API_KEY environment variable only.
type Config struct {
	Version int          `toml:"version"`
	Proxy   ProxyConfig  `toml:"proxy"`
	Client  ClientConfig `toml:"client"`
	Events  EventsConfig `toml:"events"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Listen       string `toml:"listen,omitempty"`
	Upstream     string `toml:"upstream,omitempty"`
	Model        string `toml:"model,omitempty"`
	SystemPrompt string `toml:"system_prompt,omitempty"`

	// IdleTimeout is a Go duration string, e.g. "2m".
	IdleTimeout string `toml:"idle_timeout,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// proxy (e.g. parley chat). ProxyTarget is a full URL (scheme + host + port).
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
	IdleTimeout string `toml:"idle_timeout,omitempty"`
}

// EventsConfig holds exchange event publishing settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKey maps a user-facing dotted key name to a getter and setter on
// *Config. Every value is a string at this level; list keys are comma
// separated.
type configKey struct {
	name string
	get  func(c *Config) string
	set  func(c *Config, v string) error
}

// configKeys lists every supported key in the order of the TOML layout.
var configKeys = []configKey{
	stringKey("proxy.listen", func(c *Config) *string { return &c.Proxy.Listen }),
	stringKey("proxy.upstream", func(c *Config) *string { return &c.Proxy.Upstream }),
	stringKey("proxy.model", func(c *Config) *string { return &c.Proxy.Model }),
	stringKey("proxy.system_prompt", func(c *Config) *string { return &c.Proxy.SystemPrompt }),
	durationKey("proxy.idle_timeout", func(c *Config) *string { return &c.Proxy.IdleTimeout }),
	stringKey("client.proxy_target", func(c *Config) *string { return &c.Client.ProxyTarget }),
	durationKey("client.idle_timeout", func(c *Config) *string { return &c.Client.IdleTimeout }),
	{
		name: "events.provider",
		get:  func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			if !slices.Contains(eventProviders, v) {
				return fmt.Errorf("invalid value for events.provider: %q (available: %s)", v, strings.Join(eventProviders, ", "))
			}
			c.Events.Provider = v
			return nil
		},
	},
	{
		name: "events.brokers",
		get:  func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set:  func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	stringKey("events.topic", func(c *Config) *string { return &c.Events.Topic }),
}

// eventProviders are the accepted events.provider values.
var eventProviders = []string{"none", "kafka"}

func lookupKey(name string) (configKey, bool) {
	i := slices.IndexFunc(configKeys, func(k configKey) bool { return k.name == name })
	if i < 0 {
		return configKey{}, false
	}
	return configKeys[i], true
}

func stringKey(name string, field func(*Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set:  func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// durationKey holds a Go duration string such as "90s". Negative durations
// are rejected.
func durationKey(name string, field func(*Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if err := validateDuration(name, v); err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func validateDuration(key, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid value for %s: must not be negative", key)
	}
	return nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
