// Package idle bounds how long a streaming body may go without producing
// bytes.
package idle

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrTimeout is returned by Read once the source has been silent for longer
// than the configured timeout.
var ErrTimeout = errors.New("stream idle timeout")

// Reader wraps a streaming body and closes it when a Read waits longer than
// the timeout for the source. The timer only runs while a Read is blocked on
// the source, so time the caller spends between Reads does not count. A
// timeout of zero or less disables the watchdog.
type Reader struct {
	src     io.ReadCloser
	timeout time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	waiting  bool
	timedOut bool
	closed   bool
}

// NewReader returns a Reader over src. The watchdog is armed by each Read.
func NewReader(src io.ReadCloser, timeout time.Duration) *Reader {
	r := &Reader{
		src:     src,
		timeout: timeout,
	}
	if timeout > 0 {
		r.timer = time.AfterFunc(timeout, r.expire)
		r.timer.Stop()
	}
	return r
}

// Read reads from the source, translating the error caused by a watchdog
// close into ErrTimeout.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.timedOut {
		r.mu.Unlock()
		return 0, ErrTimeout
	}
	if r.timer != nil && !r.closed {
		r.waiting = true
		r.timer.Reset(r.timeout)
	}
	r.mu.Unlock()

	n, err := r.src.Read(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.waiting = false
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.timedOut {
		return n, ErrTimeout
	}
	return n, err
}

// Close stops the watchdog and closes the source.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	timedOut := r.timedOut
	r.mu.Unlock()

	if timedOut {
		return nil
	}
	return r.src.Close()
}

// TimedOut reports whether the watchdog fired.
func (r *Reader) TimedOut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timedOut
}

func (r *Reader) expire() {
	r.mu.Lock()
	if r.closed || r.timedOut || !r.waiting {
		r.mu.Unlock()
		return
	}
	r.timedOut = true
	r.mu.Unlock()

	// Closing the body unblocks a Read in progress.
	_ = r.src.Close()
}
