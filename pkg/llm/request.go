package llm

import (
	"errors"
	"fmt"
)

// ChatRequest is the body accepted by the proxy's chat endpoint: the
// conversation history up to and including the newest user message.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// Validate checks that the request carries a non-empty history made only of
// caller roles.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages is required")
	}

	for i, msg := range r.Messages {
		if !IsCallerRole(msg.Role) {
			return fmt.Errorf("messages[%d]: unsupported role %q", i, msg.Role)
		}
	}

	return nil
}

// CompletionRequest is the body the proxy sends to the upstream completions
// endpoint.
type CompletionRequest struct {
	// Model name (e.g., "openai/gpt-4.1")
	Model string `json:"model"`

	// Messages is the system instruction followed by the caller's history.
	Messages []Message `json:"messages"`

	// Stream is always true for the relay.
	Stream bool `json:"stream"`
}
