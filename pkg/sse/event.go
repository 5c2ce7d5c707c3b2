// Package sse decodes chat-completions server-sent event streams into content
// deltas.
//
// A Decoder is fed raw byte buffers exactly as they came off the network,
// in whatever sizes the transport produced, and yields a Result per step.
// Reader and TeeReader drive a Decoder from an io.Reader; TeeReader also
// copies every byte verbatim to a destination so the proxy can relay the
// upstream stream while inspecting it.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Kind tags a decode Result.
type Kind int

const (
	// KindNeedMoreInput means the decoder has nothing to emit until it is fed
	// the next byte buffer (or told the source is finished).
	KindNeedMoreInput Kind = iota

	// KindDelta carries one fragment of assistant text in Result.Delta.
	KindDelta

	// KindDone means the stream is complete, either because the "[DONE]"
	// sentinel was seen or because the source was exhausted.
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindNeedMoreInput:
		return "need-more-input"
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Result is one step of decode progress.
type Result struct {
	Kind Kind

	// Delta is set only when Kind is KindDelta. It is never empty.
	Delta string
}
