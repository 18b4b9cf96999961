package server

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/greenfin/internal/database"
)

// handleHealth reports healthy when every database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	databases := map[string]string{}

	for _, db := range []*database.DB{s.stagingDB, s.analyticsDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			databases[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		databases[db.Name()] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":    state,
		"service":   "greenfin",
		"databases": databases,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
