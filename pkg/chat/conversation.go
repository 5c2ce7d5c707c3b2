// Package chat merges streamed completion deltas into conversations and
// drives the proxy's chat endpoint as a client.
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/utils"
)

// titleLength is the number of characters of the first user message kept as
// the conversation title.
const titleLength = 30

var (
	// ErrExchangeInProgress is returned when a conversation is changed while
	// an assistant reply is still streaming into it.
	ErrExchangeInProgress = errors.New("an exchange is already in progress")

	// ErrExchangeFinished is returned by Apply after Finish or Abort.
	ErrExchangeFinished = errors.New("exchange is finished")
)

// Message is one entry of a conversation. An assistant message is Final once
// its stream has ended; final messages never change again.
type Message struct {
	ID      string
	Role    string
	Content string
	Final   bool
}

// Observer receives the full accumulated assistant message after every
// applied delta.
type Observer func(Message)

// Conversation is an ordered list of messages plus its metadata.
// It is safe for concurrent use.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	title    string
	messages []Message
	active   *Exchange
}

// NewConversation returns an empty conversation with a fresh id.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

// Title returns the conversation title, derived from the first user message.
func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.title
}

// Messages returns a copy of the conversation's messages in order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// AddUserMessage appends a final user message. The first one also sets the
// title.
func (c *Conversation) AddUserMessage(content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return Message{}, ErrExchangeInProgress
	}

	msg := Message{
		ID:      uuid.NewString(),
		Role:    llm.RoleUser,
		Content: content,
		Final:   true,
	}
	c.messages = append(c.messages, msg)

	if c.title == "" {
		c.title = utils.Truncate(content, titleLength)
	}

	return msg, nil
}

// History returns the role and content of every message, the form sent to the
// proxy. Empty assistant messages and drafts that are not final yet are left
// out.
func (c *Conversation) History() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]llm.Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Role == llm.RoleAssistant && (m.Content == "" || !m.Final) {
			continue
		}
		history = append(history, llm.NewTextMessage(m.Role, m.Content))
	}
	return history
}

// Begin starts merging a new assistant reply into the conversation. Only one
// exchange may be in progress at a time.
func (c *Conversation) Begin(observer Observer) (*Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrExchangeInProgress
	}

	ex := &Exchange{
		conv:     c,
		observer: observer,
		index:    -1,
	}
	c.active = ex
	return ex, nil
}

// BeginRetry starts an exchange that asks again for the last reply. When the
// conversation ends with a final assistant message, that message is reopened
// as a draft: History leaves it out and the new reply replaces its content.
// Otherwise BeginRetry behaves like Begin.
func (c *Conversation) BeginRetry(observer Observer) (*Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrExchangeInProgress
	}

	ex := &Exchange{
		conv:     c,
		observer: observer,
		index:    -1,
	}

	if n := len(c.messages); n > 0 {
		if last := &c.messages[n-1]; last.Role == llm.RoleAssistant && last.Final {
			last.Final = false
			ex.replace = true
		}
	}

	c.active = ex
	return ex, nil
}
