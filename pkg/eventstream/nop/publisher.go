// Package nop provides the publisher used when event publishing is disabled.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/parley/pkg/eventstream"
)

// Publisher accepts exchange events and discards them.
type Publisher struct {
	discarded atomic.Uint64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishExchange rejects nil events and discards the rest.
func (p *Publisher) PublishExchange(_ context.Context, event *eventstream.ExchangeEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}

	p.discarded.Add(1)
	return nil
}

// Discarded returns how many events were accepted and thrown away.
func (p *Publisher) Discarded() uint64 {
	return p.discarded.Load()
}

func (p *Publisher) Close() error {
	return nil
}
