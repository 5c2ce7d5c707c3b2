package proxy

import "time"

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the base URL of the upstream completions API
	// (e.g., "https://api.bytez.com/v1"). The proxy posts to
	// UpstreamURL + "/chat/completions".
	UpstreamURL string

	// APIKey is the server-held bearer credential sent upstream. It is never
	// exposed to callers. An empty key fails every chat request with a 500.
	APIKey string

	// Model is the model id requested from the upstream.
	Model string

	// SystemPrompt is prepended to every history. Defaults to
	// llm.DefaultSystemPrompt.
	SystemPrompt string

	// IdleTimeout closes an upstream stream that produces no bytes for this
	// long. Zero disables it.
	IdleTimeout time.Duration
}
