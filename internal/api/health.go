package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/powerwatch/internal/ingest"
)

const (
	ingestConnected = ingest.StateConnected

	// healthCheckTimeout bounds each dependency probe.
	healthCheckTimeout = 2 * time.Second
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	MQTT    string            `json:"mqtt"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleLiveness answers as long as the process can serve HTTP.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness is 200 only while the broker session is up, so a load
// balancer stops routing to an instance that is not receiving readings.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	state := s.ingest.State()
	if state != ingestConnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"mqtt":   state.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "mqtt": state.String()})
}

// handleHealth probes every registered dependency.
//
// The overall status is "healthy" when the MQTT session is up and every
// check passes, otherwise "degraded". It always answers 200 so dashboards
// can read the details.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		MQTT:    s.ingest.State().String(),
	}

	if err := s.probe(r.Context(), s.ingest); err != nil {
		resp.Status = "degraded"
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := s.probe(r.Context(), s.checks[name]); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) probe(ctx context.Context, c HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return c.HealthCheck(ctx)
}
