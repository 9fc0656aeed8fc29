// Package httptransport wires the conversational (/v1) and operator (/admin)
// surfaces onto one chi router. Handlers delegate to domain services; no
// business logic lives here.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full HTTP surface. The metrics endpoint serves the
// given registry so tests can use an isolated one.
func NewRouter(user *UserHandler, admin *AdminHandler, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	user.Register(r)
	admin.Register(r)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
