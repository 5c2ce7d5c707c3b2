// Package proxy provides the parley forwarding proxy: it injects a system
// instruction into a caller's chat history, calls the upstream completions
// API with streaming enabled and relays the upstream event stream back to the
// caller byte-for-byte.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/idle"
	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/sse"
	"github.com/papercomputeco/parley/proxy/header"
	"github.com/papercomputeco/parley/proxy/worker"
)

const (
	chatPath        = "/chat"
	completionsPath = "/chat/completions"

	// maxErrorBody bounds how much of an upstream error body is read for logging.
	maxErrorBody = 64 * 1024
)

// Caller-facing error messages.
const (
	errMsgInvalidBody    = "invalid request body"
	errMsgNoAPIKey       = "API key not configured"
	errMsgRateLimited    = "Rate limit exceeded. Please try again later."
	errMsgUpstream       = "AI service error"
	errMsgTransport      = "upstream request failed"
	errMsgInternal       = "internal error"
	errMsgMethodNotAllow = "method not allowed"
)

// Proxy is a stateless chat relay. It holds no conversation state; each
// request carries its full history.
type Proxy struct {
	config         Config
	completionsURL string
	workerPool     *worker.Pool
	logger         *slog.Logger
	httpClient     *http.Client
	server         *fiber.App
	headerHandler  *header.Handler
}

// New creates a new Proxy.
// Every relayed exchange is summarized as an eventstream.ExchangeEvent and
// handed to publisher through an asynchronous worker pool.
func New(config Config, publisher eventstream.Publisher, logger *slog.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if config.Model == "" {
		return nil, errors.New("model is required")
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = llm.DefaultSystemPrompt
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:         config,
		completionsURL: strings.TrimRight(config.UpstreamURL, "/") + completionsPath,
		workerPool:     wp,
		logger:         logger,
		headerHandler:  header.NewHandler(),

		// No client-wide timeout: a healthy stream may run for minutes. Stalls
		// are caught by the idle reader instead.
		httpClient: &http.Client{},
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          p.handleError,
	})

	app.Use(recover.New())
	app.Use(p.withCORS)

	app.Options("/*", p.handlePreflight)
	app.Post(chatPath, p.handleChat)
	app.All(chatPath, p.handleMethodNotAllowed)

	p.server = app

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
		"model", p.config.Model,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
		"model", p.config.Model,
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the server, then waits for the worker pool to
// publish what it has queued.
func (p *Proxy) Close() error {
	return errors.Join(p.server.Shutdown(), p.workerPool.Close())
}

// withCORS sets the cross-origin headers on every response, errors included.
func (p *Proxy) withCORS(c *fiber.Ctx) error {
	p.headerHandler.SetCORSHeaders(c)
	return c.Next()
}

// handlePreflight answers any OPTIONS request with the CORS headers and no body.
func (p *Proxy) handlePreflight(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func (p *Proxy) handleMethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, strings.Join([]string{fiber.MethodPost, fiber.MethodOptions}, ", "))
	return c.Status(fiber.StatusMethodNotAllowed).JSON(llm.ErrorResponse{Error: errMsgMethodNotAllow})
}

// handleError renders every error returned from a handler, including
// recovered panics, as a JSON error body. Only fiber errors carry their
// message to the caller.
func (p *Proxy) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := errMsgInternal

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		p.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}

	p.headerHandler.SetCORSHeaders(c)
	return c.Status(code).JSON(llm.ErrorResponse{Error: msg})
}

// handleChat validates the caller's history, forwards it upstream and relays
// the upstream stream back.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		p.logger.Debug("rejecting malformed request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: errMsgInvalidBody})
	}
	if err := req.Validate(); err != nil {
		p.logger.Debug("rejecting invalid request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	if p.config.APIKey == "" {
		p.logger.Error("upstream API key not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: errMsgNoAPIKey})
	}

	meta := eventstream.ExchangeRequestMeta{
		Path:         c.Path(),
		MessageCount: len(req.Messages),
		StartedAt:    startTime,
	}

	body, err := json.Marshal(llm.CompletionRequest{
		Model:    p.config.Model,
		Messages: append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, p.config.SystemPrompt)}, req.Messages...),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("encoding completion request: %w", err)
	}

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the relay runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open. A caller that goes away closes the pipe, which ends the
	// relay and closes the upstream body.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, p.completionsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating upstream request: %w", err)
	}
	p.headerHandler.SetUpstreamRequestHeaders(httpReq, p.config.APIKey)

	p.logger.Debug("forwarding chat request to upstream",
		"url", p.completionsURL,
		"message_count", len(req.Messages),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		meta.HTTPStatus = fiber.StatusInternalServerError
		p.publish(meta, eventstream.ExchangeStreamMeta{Outcome: eventstream.OutcomeTransportError})
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: errMsgTransport})
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return p.rejectUpstream(c, httpResp, meta)
	}

	p.headerHandler.SetStreamHeaders(c)
	c.Status(fiber.StatusOK)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter uses an internal PipeConns with a buffered channel
	// (capacity 4) and two bufio.Writers, which means Flush() in the callback
	// only pushes data into the pipe, NOT to the TCP socket. This causes
	// chunks to buffer in memory before being sent to the client.
	//
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk. This gives direct backpressure and true per-chunk streaming.
	pr, pw := io.Pipe()
	meta.HTTPStatus = fiber.StatusOK
	go p.relay(httpResp, pw, meta)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// rejectUpstream maps a non-2xx upstream response to a caller error. The
// upstream body is logged, never echoed.
func (p *Proxy) rejectUpstream(c *fiber.Ctx, httpResp *http.Response, meta eventstream.ExchangeRequestMeta) error {
	respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
	httpResp.Body.Close()

	p.logger.Error("upstream returned error",
		"status", httpResp.StatusCode,
		"body", string(respBody),
	)

	code, msg, outcome := fiber.StatusInternalServerError, errMsgUpstream, eventstream.OutcomeUpstreamError
	if httpResp.StatusCode == http.StatusTooManyRequests {
		code, msg, outcome = fiber.StatusTooManyRequests, errMsgRateLimited, eventstream.OutcomeRateLimited
	}

	meta.HTTPStatus = code
	p.publish(meta, eventstream.ExchangeStreamMeta{Outcome: outcome})

	return c.Status(code).JSON(llm.ErrorResponse{Error: msg})
}

// relay copies the upstream body into pw verbatim while decoding it for
// telemetry. A failure mid-stream closes the pipe with the error, which
// aborts the chunked response so the caller sees a broken stream rather
// than a clean end.
func (p *Proxy) relay(httpResp *http.Response, pw *io.PipeWriter, meta eventstream.ExchangeRequestMeta) {
	body := idle.NewReader(httpResp.Body, p.config.IdleTimeout)
	defer body.Close()

	tr := sse.NewTeeReader(body, pw)
	stream := eventstream.ExchangeStreamMeta{Outcome: eventstream.OutcomeCompleted}

	var relayErr error
	for delta, err := range tr.Deltas() {
		if err != nil {
			relayErr = err
			break
		}
		stream.DeltaCount++
		stream.ContentLength += len(delta)
	}

	// Anything after the end of the stream still belongs to the caller.
	if relayErr == nil {
		relayErr = tr.Drain()
	}

	stream.SawSentinel = tr.SawSentinel()
	stream.DroppedLines = tr.Dropped()

	if relayErr != nil {
		stream.Outcome = eventstream.OutcomeStreamError
		p.logger.Warn("relaying upstream stream failed",
			"error", relayErr,
			"delta_count", stream.DeltaCount,
		)
		pw.CloseWithError(relayErr)
	} else {
		pw.Close()
	}

	p.logger.Debug("stream relayed",
		"delta_count", stream.DeltaCount,
		"content_length", stream.ContentLength,
		"saw_sentinel", stream.SawSentinel,
		"dropped_lines", stream.DroppedLines,
		"duration", time.Since(meta.StartedAt),
	)

	p.publish(meta, stream)
}

// publish enqueues an exchange event. It never blocks the request path.
func (p *Proxy) publish(meta eventstream.ExchangeRequestMeta, stream eventstream.ExchangeStreamMeta) {
	source := eventstream.EventSource{
		Upstream: p.config.UpstreamURL,
		Model:    p.config.Model,
	}
	p.workerPool.Enqueue(worker.Job{
		Event: eventstream.NewExchangeEvent(source, meta, stream),
	})
}
