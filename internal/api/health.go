package api

import (
	"encoding/json"
	"net/http"

	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/session"
)

// HealthHandler reports liveness plus, when a pool is attached,
// database reachability — the same two-tier check the teacher's
// HealthHandler runs, minus the tenant-specific pieces this module has
// no use for.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.pool == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}

		if err := s.pool.Ping(r.Context()); err != nil {
			s.log.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readyResponse is the /readyz JSON body — the operational introspection
// surface SPEC_FULL.md adds from the original SecurityManager/SessionManager
// debug-information accessors.
type readyResponse struct {
	Security *security.Stats `json:"security,omitempty"`
	Sessions session.Stats   `json:"sessions"`
}

// ReadyHandler reports the live Security Core and Session Manager state,
// the way the original's debugGetStateHandler surfaced per-user token
// counts and rule-set sizes for operators.
func (s *Server) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyResponse{Sessions: s.sess.Stats()}
		if s.core != nil {
			stats := s.core.Stats()
			resp.Security = &stats
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
