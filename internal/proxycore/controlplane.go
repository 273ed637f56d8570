package proxycore

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewControlPlane builds the loopback-only admin router (spec §6.1's
// --control-addr): health and metrics, kept off the two guest-facing
// listeners so a misbehaving guest can never reach them, grounded on the
// teacher's chi.Router-based route registration idiom
// (pkg/http/oauth.AuthHandler.RegisterRoutes).
func NewControlPlane(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
