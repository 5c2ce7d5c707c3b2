package sse

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/parley/pkg/llm"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// maxHeld bounds how much put-back text is kept while waiting for the
	// rest of a payload.
	maxHeld = 1024 * 1024
)

// Decoder turns a sequence of raw byte buffers into content deltas.
//
// All state lives on the Decoder, so independent streams use independent
// decoders. A Decoder is not safe for concurrent use.
type Decoder struct {
	// text decodes UTF-8 across buffer boundaries; raw holds the trailing
	// bytes of an incomplete multi-byte sequence.
	text transform.Transformer
	raw  []byte

	// buf holds decoded text that has not been framed into lines yet.
	buf string

	// held is the length of the put-back prefix of buf (one or more lines
	// and their newlines) that failed to parse as JSON.
	held int

	finished bool
	sentinel bool
	dropped  int
}

// NewDecoder returns a Decoder ready for its first buffer.
func NewDecoder() *Decoder {
	return &Decoder{
		text: unicode.UTF8.NewDecoder(),
	}
}

// Feed hands the decoder the next physical buffer read from the source.
// The chunk is copied; callers may reuse it.
func (d *Decoder) Feed(chunk []byte) {
	if d.sentinel || d.finished || len(chunk) == 0 {
		return
	}

	d.raw = append(d.raw, chunk...)
	d.decode(false)
}

// Finish tells the decoder the source is exhausted. Any incomplete byte
// sequence is decoded with replacement characters and a trailing line with no
// newline is processed as if it had one. After Finish, Next never returns
// KindNeedMoreInput.
func (d *Decoder) Finish() {
	if d.finished {
		return
	}
	d.finished = true

	if d.sentinel {
		return
	}

	d.decode(true)
	if d.buf != "" && !strings.HasSuffix(d.buf, "\n") {
		d.buf += "\n"
	}
}

// SawSentinel reports whether the stream ended with "data: [DONE]" rather
// than with the source running out.
func (d *Decoder) SawSentinel() bool {
	return d.sentinel
}

// Dropped returns how many put-back lines were discarded because they never
// became valid JSON.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Next returns the next step of decode progress. It never blocks.
func (d *Decoder) Next() Result {
	for !d.sentinel {
		i := strings.IndexByte(d.buf[d.held:], '\n')
		if i < 0 {
			break
		}
		end := d.held + i

		// A held line is normally joined with the line after it. When that
		// next line is a complete record on its own, the held text is
		// garbage rather than the head of a split payload.
		if d.held > 0 && (isRecord(d.buf[d.held:end]) || d.held > maxHeld) {
			d.dropped++
			d.buf = d.buf[d.held:]
			end -= d.held
			d.held = 0
		}

		if res, ok := d.line(end); ok {
			return res
		}
	}

	if d.sentinel {
		return Result{Kind: KindDone}
	}

	if d.finished {
		if d.held > 0 {
			d.dropped++
			d.buf = d.buf[d.held:]
			d.held = 0
		}
		return Result{Kind: KindDone}
	}

	return Result{Kind: KindNeedMoreInput}
}

// line processes buf[:end] as one line. It returns a result when the line
// produced something to emit.
func (d *Decoder) line(end int) (Result, bool) {
	text := strings.TrimSuffix(d.buf[:end], "\r")

	if text == "" || strings.HasPrefix(text, ":") {
		d.consume(end)
		return Result{}, false
	}

	payload, ok := strings.CutPrefix(text, dataPrefix)
	if !ok {
		d.consume(end)
		return Result{}, false
	}

	if strings.TrimSpace(payload) == doneSentinel {
		d.sentinel = true
		d.buf = ""
		d.held = 0
		return Result{Kind: KindDone}, true
	}

	if !json.Valid([]byte(payload)) {
		// Put back: the line stays at the front of buf and is retried
		// joined with the line after it.
		d.held = end + 1
		return Result{}, false
	}

	d.consume(end)

	var chunk llm.StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// Valid JSON of an unexpected shape.
		return Result{}, false
	}

	if content := chunk.Content(); content != "" {
		return Result{Kind: KindDelta, Delta: content}, true
	}

	return Result{}, false
}

// consume drops buf[:end] and its newline.
func (d *Decoder) consume(end int) {
	d.buf = d.buf[end+1:]
	d.held = 0
}

// decode moves as much of raw as forms complete characters into buf.
func (d *Decoder) decode(atEOF bool) {
	for len(d.raw) > 0 {
		dst := make([]byte, 3*len(d.raw)+utf8.UTFMax)
		nDst, nSrc, err := d.text.Transform(dst, d.raw, atEOF)
		d.buf += string(dst[:nDst])
		d.raw = d.raw[nSrc:]

		if !errors.Is(err, transform.ErrShortDst) || (nDst == 0 && nSrc == 0) {
			break
		}
	}

	if len(d.raw) == 0 {
		d.raw = nil
	}
}

// isRecord reports whether line is a data line that stands on its own: the
// sentinel or a complete JSON payload.
func isRecord(line string) bool {
	payload, ok := strings.CutPrefix(strings.TrimSuffix(line, "\r"), dataPrefix)
	if !ok {
		return false
	}
	return strings.TrimSpace(payload) == doneSentinel || json.Valid([]byte(payload))
}
