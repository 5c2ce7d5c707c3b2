package sse

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

const (
	readSize = 32 * 1024

	// maxEmptyReads is how many (0, nil) reads in a row fill tolerates
	// before giving up with io.ErrNoProgress.
	maxEmptyReads = 100
)

// Reader decodes content deltas from a source io.Reader.
// Each call to the source's Read is the only point where Reader blocks; the
// bytes it returns are fed to the Decoder as one buffer and scanned
// synchronously before the next Read.
//
// A TeeReader additionally writes every buffer, verbatim and before decoding
// it, to a destination writer:
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │   Reader.Next()  │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Result      │
// └──────────────────┘
type Reader struct {
	src  io.Reader
	dest io.Writer
	dec  *Decoder
	buf  []byte
	eof  bool
}

// NewReader returns a Reader that decodes deltas from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src: src,
		dec: NewDecoder(),
		buf: make([]byte, readSize),
	}
}

// NewTeeReader returns a Reader that decodes deltas from src and writes all
// raw bytes through to dest. The dest writer typically backs an io.Pipe
// connected to the downstream HTTP response.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	r := NewReader(src)
	r.dest = dest
	return r
}

// Next returns the next delta, or a KindDone result once the stream is
// complete. A clean end of the source counts as completion. Errors from the
// source (other than io.EOF) or from the tee destination are returned as-is
// or wrapped; the Reader should not be used after an error.
func (r *Reader) Next() (Result, error) {
	for {
		res := r.dec.Next()
		if res.Kind != KindNeedMoreInput {
			return res, nil
		}

		if err := r.fill(); err != nil {
			return Result{}, err
		}
	}
}

// Deltas returns a lazy sequence of the stream's deltas. The sequence ends
// after the stream completes, or after yielding a non-nil error.
func (r *Reader) Deltas() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			res, err := r.Next()
			if err != nil {
				yield("", err)
				return
			}
			if res.Kind == KindDone {
				return
			}
			if !yield(res.Delta, nil) {
				return
			}
		}
	}
}

// Drain copies whatever the source still holds to the destination without
// decoding it. It is a no-op for a Reader with no destination.
func (r *Reader) Drain() error {
	if r.eof || r.dest == nil {
		return nil
	}
	r.eof = true

	if _, err := io.CopyBuffer(r.dest, r.src, r.buf); err != nil {
		return fmt.Errorf("draining source: %w", err)
	}
	return nil
}

// SawSentinel reports whether the stream was terminated by "data: [DONE]".
func (r *Reader) SawSentinel() bool {
	return r.dec.SawSentinel()
}

// Dropped returns the number of unparseable lines the decoder discarded.
func (r *Reader) Dropped() int {
	return r.dec.Dropped()
}

// fill reads from the source until it returns bytes or an error and feeds the
// result to the decoder.
func (r *Reader) fill() error {
	if r.eof {
		r.dec.Finish()
		return nil
	}

	for range maxEmptyReads {
		n, err := r.src.Read(r.buf)
		if n == 0 && err == nil {
			continue
		}

		if n > 0 {
			if r.dest != nil {
				if _, werr := r.dest.Write(r.buf[:n]); werr != nil {
					return fmt.Errorf("writing to destination: %w", werr)
				}
			}
			r.dec.Feed(r.buf[:n])
		}

		switch {
		case err == nil:
			return nil
		case errors.Is(err, io.EOF):
			r.eof = true
			return nil
		default:
			return err
		}
	}
	return io.ErrNoProgress
}
