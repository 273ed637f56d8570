package headers

const (
	// AuthorizationHeader is a standard HTTP Header.
	AuthorizationHeader = "Authorization"
	// ContentTypeHeader is a standard HTTP Header.
	ContentTypeHeader = "Content-Type"
	// AcceptHeader is a standard HTTP Header.
	AcceptHeader = "Accept"
	// UserAgentHeader is a standard HTTP Header.
	UserAgentHeader = "User-Agent"

	// ContentTypeJSON is the standard MIME type for JSON.
	ContentTypeJSON = "application/json"
	// ContentTypeEventStream is the standard MIME type for Event Streams.
	ContentTypeEventStream = "text/event-stream"

	// ForwardedForHeader is a standard HTTP Header used to forward the originating IP address of a client.
	ForwardedForHeader = "X-Forwarded-For"

	// RealIPHeader is a standard HTTP Header used to indicate the real IP address of the client.
	RealIPHeader = "X-Real-IP"

	// RequestIDHeader carries the ID that correlates a single proxied
	// request. It is echoed back on the response, generating one when the
	// client didn't supply it, and appears in the proxy's rejection log
	// line. Approval prompts show their own per-prompt ID, not this one.
	RequestIDHeader = "X-Request-Id"
)
