package config

import "github.com/papercomputeco/parley/pkg/llm"

const (
	defaultProxyListen   = ":8080"
	defaultUpstream      = "https://api.bytez.com/v1"
	defaultModel         = "openai/gpt-4.1"
	defaultProxyIdle     = "2m"
	defaultClientTarget  = "http://localhost:8080"
	defaultClientIdle    = "2m"
	defaultEventProvider = "none"
	defaultEventTopic    = "parley.exchanges"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Listen:       defaultProxyListen,
			Upstream:     defaultUpstream,
			Model:        defaultModel,
			SystemPrompt: llm.DefaultSystemPrompt,
			IdleTimeout:  defaultProxyIdle,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientTarget,
			IdleTimeout: defaultClientIdle,
		},
		Events: EventsConfig{
			Provider: defaultEventProvider,
			Topic:    defaultEventTopic,
		},
	}
}
