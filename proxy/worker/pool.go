// Package worker publishes exchange events off the proxy's request path.
// A slow or unavailable event backend never delays a relayed stream: events
// queue up to a bound and are dropped beyond it.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/parley/pkg/eventstream"
)

const (
	defaultNumWorkers     = 2
	defaultQueueSize      = 256
	defaultPublishTimeout = 10 * time.Second
)

// Job is one event waiting to be published.
type Job struct {
	Event *eventstream.ExchangeEvent
}

// Config configures a Pool. Zero values take the defaults.
type Config struct {
	// Publisher receives every event and is closed with the pool.
	Publisher eventstream.Publisher

	// NumWorkers publishing concurrently (default 2).
	NumWorkers int

	// QueueSize bounds the events waiting for a worker (default 256).
	QueueSize int

	// PublishTimeout bounds each publish call (default 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Stats counts what happened to the events handed to a Pool.
type Stats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}

// Pool publishes events on a fixed set of worker goroutines.
type Pool struct {
	publisher eventstream.Publisher
	timeout   time.Duration
	logger    *slog.Logger

	queue chan Job
	wg    sync.WaitGroup

	// mu guards closed so an Enqueue racing Close never sends on a closed queue.
	mu     sync.RWMutex
	closed bool

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewPool starts a Pool's workers.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if c.NumWorkers < 0 || c.QueueSize < 0 {
		return nil, errors.New("worker and queue sizes must not be negative")
	}

	p := &Pool{
		publisher: c.Publisher,
		timeout:   cmpOr(c.PublishTimeout, defaultPublishTimeout),
		logger:    c.Logger,
		queue:     make(chan Job, cmpOr(c.QueueSize, defaultQueueSize)),
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	workers := cmpOr(c.NumWorkers, defaultNumWorkers)
	p.wg.Add(workers)
	for id := range workers {
		go p.work(id)
	}

	return p, nil
}

// cmpOr returns v, or def when v is not positive.
func cmpOr[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Enqueue hands job to the workers without blocking. It reports false when
// the job was dropped: no event, a full queue, or a closed pool.
func (p *Pool) Enqueue(job Job) bool {
	if job.Event == nil {
		p.logger.Warn("job not queued, missing event")
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		p.logger.Warn("job not queued, pool closed", "event_id", job.Event.EventID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"event_id", job.Event.EventID,
			"outcome", job.Event.Stream.Outcome,
		)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Error("job not queued, queue full, job dropped",
			"event_id", job.Event.EventID,
			"outcome", job.Event.Stream.Outcome,
		)
		return false
	}
}

// Stats returns the counters so far.
func (p *Pool) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Close stops accepting jobs, publishes what is queued and then closes the
// publisher. Call it after the HTTP server has stopped. Later calls return nil.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()

	stats := p.Stats()
	p.logger.Info("event publishing stopped",
		"published", stats.Published,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)
	return p.publisher.Close()
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for job := range p.queue {
		p.publish(job.Event)
	}

	p.logger.Debug("event worker stopped", "worker_id", id)
}

// publish sends one event. Failures are logged and counted, never retried.
func (p *Pool) publish(event *eventstream.ExchangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.publisher.PublishExchange(ctx, event); err != nil {
		p.failed.Add(1)
		p.logger.Error("publishing exchange event failed",
			"event_id", event.EventID,
			"error", err,
		)
		return
	}

	p.published.Add(1)
	p.logger.Debug("exchange event published",
		"event_id", event.EventID,
		"outcome", event.Stream.Outcome,
		"delta_count", event.Stream.DeltaCount,
	)
}
