// Package storage
package storage

import (
	"context"

	"github.com/papercomputeco/parley/pkg/chat"
)

// Driver defines the interface for keeping conversations in a storage backend.
type Driver interface {
	// Put stores a conversation, replacing any conversation with the same id.
	Put(ctx context.Context, conv *chat.Conversation) error

	// Get retrieves a conversation by its id.
	Get(ctx context.Context, id string) (*chat.Conversation, error)

	// List returns all conversations, most recently created first.
	List(ctx context.Context) ([]*chat.Conversation, error)

	// Delete removes a conversation by its id.
	Delete(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}
