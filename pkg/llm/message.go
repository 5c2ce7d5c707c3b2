// Package llm holds the chat-completions wire types shared by the proxy and
// the chat client.
package llm

// Roles accepted by the upstream completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged message in a conversation history.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // plain text, markdown allowed
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// IsCallerRole reports whether role may appear in a history sent by a caller.
// The system role is reserved for the proxy.
func IsCallerRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// DefaultSystemPrompt is the instruction prepended to every history unless
// the proxy is configured with another one.
const DefaultSystemPrompt = "You are a helpful AI assistant. Keep your answers clear, concise, and helpful. Use markdown formatting when appropriate."
