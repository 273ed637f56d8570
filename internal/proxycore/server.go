package proxycore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/safareli/http-proxy/internal/profiler"
	ghcontext "github.com/safareli/http-proxy/pkg/context"
	proxyerrors "github.com/safareli/http-proxy/pkg/errors"
	"github.com/safareli/http-proxy/pkg/http/headers"
	"github.com/safareli/http-proxy/pkg/http/transport"
	"github.com/safareli/http-proxy/pkg/mediator"
	"github.com/safareli/http-proxy/pkg/observability/log"
	"github.com/safareli/http-proxy/pkg/observability/metrics"
)

// Server is the http.Handler bound to both the plaintext and TLS listeners
// (spec §6): it normalizes an inbound request, runs it through the
// Mediation Core, and either forwards the (possibly rewritten) request
// upstream or writes the rejection/error response the mediator produced.
type Server struct {
	Mediator *mediator.Mediator
	Upstream *http.Client
	// Scheme is the scheme used to reach the upstream origin. The proxy
	// terminates TLS for the guest and re-originates its own connection to
	// the real origin at this scheme — "https" in production.
	Scheme  string
	Logger  log.Logger
	Metrics metrics.Metrics
	// Profiler, when non-nil and enabled, records wall-clock and memory
	// cost of each mediation pass.
	Profiler *profiler.Profiler
}

func (s *Server) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewNoopLogger()
}

func (s *Server) metricsSink() metrics.Metrics {
	if s.Metrics != nil {
		return s.Metrics
	}
	return metrics.NewNoopMetrics()
}

func (s *Server) profiler() *profiler.Profiler {
	if s.Profiler != nil {
		return s.Profiler
	}
	return profiler.New(nil, false)
}

func (s *Server) scheme() string {
	if s.Scheme != "" {
		return s.Scheme
	}
	return "https"
}

// ServeHTTP implements spec §6's "TLS-terminating HTTP server": read the
// request, mediate it, forward-or-reject.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, _ := ghcontext.RequestID(ctx)

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			proxyerrors.WriteError(w, proxyerrors.NewMalformedInputError("read request body", err))
			return
		}
	}

	req := mediator.Request{
		Host:          r.Host,
		Method:        r.Method,
		PathWithQuery: r.URL.RequestURI(),
		Headers:       r.Header.Clone(),
		Body:          body,
	}

	var fwd *mediator.ForwardRequest
	_, err := s.profiler().ProfileFuncWithMetrics(ctx, "mediate", func() (int, int64, error) {
		var mErr error
		fwd, mErr = s.Mediator.Mediate(ctx, req)
		return 0, int64(len(body)), mErr
	})
	if err != nil {
		s.logger().Info("mediation rejected request",
			log.String("request_id", requestID),
			log.String("host", req.Host),
			log.String("method", req.Method),
			log.Err(err),
		)
		proxyerrors.WriteError(w, err)
		return
	}

	s.forward(w, r, req, fwd)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, req mediator.Request, fwd *mediator.ForwardRequest) {
	upstreamURL := fmt.Sprintf("%s://%s%s", s.scheme(), req.Host, req.PathWithQuery)

	var bodyReader io.Reader
	if len(fwd.Body) > 0 {
		bodyReader = bytes.NewReader(fwd.Body)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), req.Method, upstreamURL, bodyReader)
	if err != nil {
		proxyerrors.WriteError(w, proxyerrors.NewConfigurationError("build upstream request", err))
		return
	}
	outReq.Header = fwd.Headers.Clone()

	resp, err := s.Upstream.Do(outReq)
	if err != nil {
		s.metricsSink().Increment("upstream_forward_errors", map[string]string{"host": req.Host})
		proxyerrors.WriteError(w, proxyerrors.NewUpstreamError("forward request upstream", nil, err))
		return
	}
	defer resp.Body.Close()
	s.metricsSink().Increment("upstream_forwarded", map[string]string{"host": req.Host})

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	if requestID, ok := ghcontext.RequestID(r.Context()); ok {
		w.Header().Set(headers.RequestIDHeader, requestID)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// NewUpstreamClient builds the standard HTTP client spec §6 calls for: no
// automatic response decompression (response bytes must pass through
// untouched), a fixed User-Agent, and a bounded idle-connection timeout
// matching the per-connection idle budget spec §5 describes.
func NewUpstreamClient(userAgent string, timeout time.Duration) *http.Client {
	base := &http.Transport{
		DisableCompression: true,
		IdleConnTimeout:    timeout,
	}
	return &http.Client{
		Transport: &transport.UserAgentTransport{Transport: base, Agent: userAgent},
	}
}
