package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the conversation map and
	// insertion order
	mu sync.RWMutex

	// conversations is keyed by conversation id
	conversations map[string]*chat.Conversation

	// order holds ids in insertion order, oldest first
	order []string
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*chat.Conversation),
	}
}

// Put stores a conversation. Replacing an existing id keeps its position.
func (s *Driver) Put(_ context.Context, conv *chat.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}
	if conv.ID == "" {
		return errors.New("cannot store conversation without an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		s.order = append(s.order, conv.ID)
	}
	s.conversations[conv.ID] = conv
	return nil
}

// Get retrieves a conversation by its id.
func (s *Driver) Get(_ context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return conv, nil
}

// List returns all conversations, newest first.
func (s *Driver) List(_ context.Context) ([]*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]*chat.Conversation, 0, len(s.order))
	for _, id := range slices.Backward(s.order) {
		convs = append(convs, s.conversations[id])
	}

	return convs, nil
}

// Delete removes a conversation.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return storage.NotFoundError{ID: id}
	}

	delete(s.conversations, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// Count returns the number of conversations in the in-memory store.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}
