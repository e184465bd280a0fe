package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})

	// Probes and scraping for orchestrators.
	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/readings", func(r chi.Router) {
			r.Get("/", s.handleListReadings)

			r.Route("/{apartment}", func(r chi.Router) {
				r.Get("/", s.handleGetReading)
				r.Post("/snapshot", s.handleSnapshot)
				r.Get("/history", s.handleHistory)
			})
		})

		r.Route("/apartments", func(r chi.Router) {
			r.Get("/", s.handleListApartments)
			r.Post("/", s.handleRegisterApartment)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
