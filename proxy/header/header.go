// Package header provides header handling for the parley proxy.
//
// The proxy sits between a browser or CLI caller and an upstream
// chat-completions API like so:
//
//	Caller <--> Proxy <--> Upstream completions API
//
// Each leg gets its own headers: the caller sees permissive CORS headers on
// every response, and the upstream sees only what the proxy chooses to send.
// No caller header is forwarded upstream, so the caller can never supply or
// observe the server-held credential.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const (
	// AllowOrigin is the Access-Control-Allow-Origin value on every response.
	AllowOrigin = "*"

	// AllowHeaders is the Access-Control-Allow-Headers value on every response.
	AllowHeaders = "authorization, x-client-info, apikey, content-type"

	// EventStream is the content type of a relayed stream.
	EventStream = "text/event-stream"
)

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SetCORSHeaders sets the cross-origin headers on the caller response.
func (h *Handler) SetCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, AllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowHeaders, AllowHeaders)
}

// SetStreamHeaders marks the caller response as an uncached event stream.
func (h *Handler) SetStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, EventStream)
	c.Set(fiber.HeaderCacheControl, "no-cache")
}

// SetUpstreamRequestHeaders sets the headers of the outgoing completions
// request. Accept-Encoding is left unset so Go's http.Transport negotiates
// gzip itself and hands back a decompressed body.
func (h *Handler) SetUpstreamRequestHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", EventStream)
}
