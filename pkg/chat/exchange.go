package chat

import (
	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/llm"
)

// Exchange accumulates one streamed assistant reply into its conversation.
// An Exchange is driven by a single goroutine.
type Exchange struct {
	conv     *Conversation
	observer Observer

	// index is the position of the assistant message being built, or -1
	// before the first delta.
	index  int
	deltas int
	done   bool
	err    error

	// replace is set for a retry that reopened the previous reply. The first
	// delta overwrites it instead of extending it.
	replace bool
}

// Apply appends delta to the assistant message and notifies the observer with
// the full content so far. The first delta extends a trailing non-final
// assistant message if there is one, and otherwise creates a new message.
func (e *Exchange) Apply(delta string) error {
	c := e.conv

	c.mu.Lock()
	if e.done {
		c.mu.Unlock()
		return ErrExchangeFinished
	}

	if e.index < 0 {
		e.claim()
	}

	c.messages[e.index].Content += delta
	e.deltas++
	msg := c.messages[e.index]
	c.mu.Unlock()

	if e.observer != nil {
		e.observer(msg)
	}
	return nil
}

// Finish marks the reply final and ends the exchange. A stream that carried
// no deltas still produces an empty final assistant message.
func (e *Exchange) Finish() Message {
	c := e.conv

	c.mu.Lock()
	defer c.mu.Unlock()

	if e.index < 0 {
		if e.done {
			return Message{}
		}
		e.claim()
	}

	e.end()
	return c.messages[e.index]
}

// Abort ends the exchange after a failure. Content merged so far is kept and
// marked final. It reports false when no assistant message was started; a
// retry that received nothing leaves the previous reply in place.
func (e *Exchange) Abort(err error) (Message, bool) {
	c := e.conv

	c.mu.Lock()
	defer c.mu.Unlock()

	if !e.done {
		e.err = err
		if e.index < 0 && e.replace {
			if i := c.trailingDraft(); i >= 0 {
				c.messages[i].Final = true
			}
		}
	}
	e.end()

	if e.index < 0 {
		return Message{}, false
	}
	return c.messages[e.index], true
}

// Err returns the error passed to Abort.
func (e *Exchange) Err() error {
	e.conv.mu.RLock()
	defer e.conv.mu.RUnlock()
	return e.err
}

// Deltas returns how many deltas were applied.
func (e *Exchange) Deltas() int {
	e.conv.mu.RLock()
	defer e.conv.mu.RUnlock()
	return e.deltas
}

// claim points the exchange at the message it builds: a trailing draft when
// there is one, otherwise a new assistant message. The conversation lock must
// be held.
func (e *Exchange) claim() {
	c := e.conv

	e.index = c.trailingDraft()
	if e.index >= 0 {
		if e.replace {
			c.messages[e.index].Content = ""
		}
		return
	}

	c.messages = append(c.messages, Message{
		ID:   uuid.NewString(),
		Role: llm.RoleAssistant,
	})
	e.index = len(c.messages) - 1
}

// end finalizes the exchange. The conversation lock must be held.
func (e *Exchange) end() {
	if e.done {
		return
	}
	e.done = true

	if e.index >= 0 {
		e.conv.messages[e.index].Final = true
	}
	if e.conv.active == e {
		e.conv.active = nil
	}
}

// trailingDraft returns the index of a trailing non-final assistant message,
// or -1. The conversation lock must be held.
func (c *Conversation) trailingDraft() int {
	n := len(c.messages)
	if n == 0 {
		return -1
	}

	last := c.messages[n-1]
	if last.Role == llm.RoleAssistant && !last.Final {
		return n - 1
	}
	return -1
}
