package llm

// ErrorResponse is the JSON error body returned by the proxy.
type ErrorResponse struct {
	Error string `json:"error"`
}
