package middleware

import (
	"net/http"

	ghcontext "github.com/safareli/http-proxy/pkg/context"
	"github.com/safareli/http-proxy/pkg/http/headers"
)

// WithRequestConfig assigns every inbound request a request ID: the
// client-supplied headers.RequestIDHeader if present, otherwise a freshly
// generated one. The ID is stored in the request context and echoed back on
// the response; the proxy server adds it to the log line it writes when
// mediation rejects a request. It is not passed to the approval transport.
func WithRequestConfig(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := r.Header.Get(headers.RequestIDHeader)
		if requestID == "" {
			generated, err := ghcontext.GenerateRequestID()
			if err != nil {
				http.Error(w, "failed to generate request id", http.StatusInternalServerError)
				return
			}
			requestID = generated
		}

		ctx = ghcontext.WithRequestID(ctx, requestID)
		w.Header().Set(headers.RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
