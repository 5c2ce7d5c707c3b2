package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/idle"
	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/sse"
)

const (
	chatPath = "/chat"

	// maxErrorBody bounds how much of a non-200 response is read.
	maxErrorBody = 64 * 1024
)

// ErrRateLimited matches a ResponseError for a 429 from the proxy.
var ErrRateLimited = errors.New("rate limited")

// ResponseError is a non-200 reply from the proxy's chat endpoint.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("proxy returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("proxy returned status %d: %s", e.StatusCode, e.Message)
}

// Is reports whether e matches target. A 429 matches ErrRateLimited.
func (e *ResponseError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// ProxyTarget is the proxy's base URL, e.g. "http://localhost:8080".
	ProxyTarget string

	// IdleTimeout closes a reply stream that produces no bytes for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// HTTPClient defaults to a client with no overall timeout, since replies
	// stream for as long as the model writes.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client sends conversations to the proxy and merges the streamed replies.
type Client struct {
	endpoint    string
	idleTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient returns a Client for the proxy at cfg.ProxyTarget.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.ProxyTarget, "/") + chatPath,
		idleTimeout: cfg.IdleTimeout,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Send appends content as a user message and streams the assistant reply
// into conv.
func (c *Client) Send(ctx context.Context, conv *Conversation, content string, observer Observer) (Message, error) {
	if _, err := conv.AddUserMessage(content); err != nil {
		return Message{}, err
	}
	return c.Complete(ctx, conv, observer)
}

// Complete posts the conversation history and streams the assistant reply
// into conv. On failure, content merged before the error stays in the
// conversation as a final message and is returned alongside the error.
func (c *Client) Complete(ctx context.Context, conv *Conversation, observer Observer) (Message, error) {
	ex, err := conv.Begin(observer)
	if err != nil {
		return Message{}, err
	}
	return c.run(ctx, conv, ex)
}

// Retry asks again for the reply to the last user message. A trailing
// assistant reply is left out of the request and replaced by the new one. If
// the retry fails before any content arrives, the previous reply is kept.
func (c *Client) Retry(ctx context.Context, conv *Conversation, observer Observer) (Message, error) {
	ex, err := conv.BeginRetry(observer)
	if err != nil {
		return Message{}, err
	}
	return c.run(ctx, conv, ex)
}

func (c *Client) run(ctx context.Context, conv *Conversation, ex *Exchange) (Message, error) {
	msg, err := c.stream(ctx, conv, ex)
	if err != nil {
		partial, _ := ex.Abort(err)
		c.logger.Debug("exchange aborted",
			"conversation", conv.ID,
			"deltas", ex.Deltas(),
			"error", err,
		)
		return partial, err
	}
	return msg, nil
}

func (c *Client) stream(ctx context.Context, conv *Conversation, ex *Exchange) (Message, error) {
	body, err := json.Marshal(llm.ChatRequest{Messages: conv.History()})
	if err != nil {
		return Message{}, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("sending chat request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return Message{}, readResponseError(resp)
	}

	respBody := idle.NewReader(resp.Body, c.idleTimeout)
	defer respBody.Close()

	reader := sse.NewReader(respBody)
	for delta, err := range reader.Deltas() {
		if err != nil {
			return Message{}, fmt.Errorf("reading reply stream: %w", err)
		}
		if err := ex.Apply(delta); err != nil {
			return Message{}, err
		}
	}

	msg := ex.Finish()
	c.logger.Debug("exchange complete",
		"conversation", conv.ID,
		"deltas", ex.Deltas(),
		"sentinel", reader.SawSentinel(),
		"dropped_lines", reader.Dropped(),
		"duration", time.Since(startTime),
	)
	return msg, nil
}

func readResponseError(resp *http.Response) error {
	respErr := &ResponseError{StatusCode: resp.StatusCode}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return respErr
	}

	var body llm.ErrorResponse
	if err := json.Unmarshal(b, &body); err == nil {
		respErr.Message = body.Error
	}
	return respErr
}
