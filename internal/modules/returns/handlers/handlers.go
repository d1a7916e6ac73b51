// Package handlers provides HTTP handlers for returns-set operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/returns"
)

// Handler handles returns-set HTTP requests
type Handler struct {
	repo *returns.Repository
	log  zerolog.Logger
}

// NewHandler creates a new returns handler
func NewHandler(repo *returns.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "returns").Logger(),
	}
}

// createSetRequest is the body of POST /api/returns
type createSetRequest struct {
	Name    string      `json:"name"`
	Labels  []string    `json:"labels"`
	Returns [][]float64 `json:"returns"`
}

// HandleCreateSet handles POST /api/returns
func (h *Handler) HandleCreateSet(w http.ResponseWriter, r *http.Request) {
	var req createSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "Field 'name' is required")
		return
	}

	rm, err := optimization.NewReturnsMatrix(req.Labels, req.Returns)
	if err != nil {
		var inputErr *optimization.InputError
		if errors.As(err, &inputErr) {
			h.writeError(w, http.StatusBadRequest, inputErr.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to build returns matrix")
		h.writeError(w, http.StatusInternalServerError, "Failed to build returns matrix")
		return
	}

	summary, err := h.repo.Save(req.Name, rm)
	if err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("Failed to save returns set")
		h.writeError(w, http.StatusInternalServerError, "Failed to save returns set")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListSets handles GET /api/returns
func (h *Handler) HandleListSets(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list returns sets")
		h.writeError(w, http.StatusInternalServerError, "Failed to list returns sets")
		return
	}

	if summaries == nil {
		summaries = []returns.SetSummary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"sets":  summaries,
			"count": len(summaries),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSet handles GET /api/returns/{id}
func (h *Handler) HandleGetSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	summary, err := h.repo.GetSummary(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get returns set")
		h.writeError(w, http.StatusInternalServerError, "Failed to get returns set")
		return
	}
	if summary == nil {
		h.writeError(w, http.StatusNotFound, "Returns set not found")
		return
	}

	rm, err := h.repo.GetMatrix(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load returns values")
		h.writeError(w, http.StatusInternalServerError, "Failed to load returns values")
		return
	}
	if rm == nil {
		// Deleted between the two queries
		h.writeError(w, http.StatusNotFound, "Returns set not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"id":         summary.ID,
			"name":       summary.Name,
			"labels":     rm.Labels(),
			"returns":    rm.Rows(),
			"assets":     summary.Assets,
			"scenarios":  summary.Scenarios,
			"created_at": summary.CreatedAt.Format(time.RFC3339),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleDeleteSet handles DELETE /api/returns/{id}
func (h *Handler) HandleDeleteSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.repo.Delete(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to delete returns set")
		h.writeError(w, http.StatusInternalServerError, "Failed to delete returns set")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, "Returns set not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"deleted": true,
			"id":      id,
		},
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
