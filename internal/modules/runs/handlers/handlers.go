// Package handlers provides HTTP handlers for optimization run history.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/modules/runs"
)

// defaultListLimit caps GET /api/runs when no limit is given
const defaultListLimit = 50

// Handler handles run history HTTP requests
type Handler struct {
	repo *runs.Repository
	log  zerolog.Logger
}

// NewHandler creates a new run history handler
func NewHandler(repo *runs.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "runs").Logger(),
	}
}

// HandleListRuns handles GET /api/runs
// Query parameters: limit (default 50), set_id (filter by returns set)
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		records []runs.Run
		err     error
	)

	if setID := r.URL.Query().Get("set_id"); setID != "" {
		records, err = h.repo.ListBySet(setID)
	} else {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, parseErr := strconv.Atoi(raw)
			if parseErr != nil || parsed < 1 {
				h.writeError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
				return
			}
			limit = parsed
		}
		records, err = h.repo.List(limit)
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	if records == nil {
		records = []runs.Run{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  records,
			"count": len(records),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get run")
		h.writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	if run == nil {
		h.writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": run,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
