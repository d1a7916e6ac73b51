// Package server provides the HTTP server and routing for madfolio.
package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth handles health check requests. The service is only as
// healthy as its database connection.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Conn().PingContext(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"service": "madfolio",
		})
		return
	}

	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "madfolio",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
