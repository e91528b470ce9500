package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/middleware"
)

// NewRouter builds the chi router: ops endpoints are public, everything
// under /api requires a bearer token. A nil metrics disables /metrics.
func NewRouter(h *Handler, jwtManager *auth.JWTManager, m *metrics.Metrics, metricsPath string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(m))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", Health)
	if m != nil {
		r.Method(http.MethodGet, metricsPath, m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtManager))
		h.Routes(r)
	})
	return r
}
