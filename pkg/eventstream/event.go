package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeCompleted is emitted after the proxy finishes relaying
	// a chat exchange, successfully or not.
	EventTypeExchangeCompleted = "parley.exchange.completed"
)

// Outcome values for ExchangeStreamMeta.Outcome.
const (
	OutcomeCompleted      = "completed"
	OutcomeRateLimited    = "rate_limited"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeTransportError = "transport_error"
	OutcomeStreamError    = "stream_error"
)

// ExchangeEvent is a transport-neutral event payload describing one relayed
// exchange. It carries counts and timings only, never message content.
type ExchangeEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Source        EventSource         `json:"source"`
	RequestMeta   ExchangeRequestMeta `json:"request_meta"`
	Stream        ExchangeStreamMeta  `json:"stream"`
}

// EventSource identifies the upstream the exchange was sent to.
type EventSource struct {
	Upstream string `json:"upstream"`
	Model    string `json:"model"`
}

// ExchangeRequestMeta captures request lifecycle metadata for the event.
type ExchangeRequestMeta struct {
	Path         string    `json:"path,omitempty"`
	MessageCount int       `json:"message_count"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	HTTPStatus   int       `json:"http_status"`
}

// ExchangeStreamMeta summarizes the relayed stream.
type ExchangeStreamMeta struct {
	Outcome       string `json:"outcome"`
	DeltaCount    int    `json:"delta_count"`
	ContentLength int    `json:"content_length"`
	SawSentinel   bool   `json:"saw_sentinel"`
	DroppedLines  int    `json:"dropped_lines,omitempty"`
}

// NewExchangeEvent stamps a v1 event with a fresh id and emission time.
// CompletedAt and DurationMs are filled from the request start if unset.
func NewExchangeEvent(source EventSource, req ExchangeRequestMeta, stream ExchangeStreamMeta) *ExchangeEvent {
	now := time.Now().UTC()

	if req.CompletedAt.IsZero() {
		req.CompletedAt = now
	}
	if req.DurationMs == 0 && !req.StartedAt.IsZero() {
		req.DurationMs = req.CompletedAt.Sub(req.StartedAt).Milliseconds()
	}

	return &ExchangeEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     now,
		Source:        source,
		RequestMeta:   req,
		Stream:        stream,
	}
}
