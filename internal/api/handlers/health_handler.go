package handlers

import (
	"net/http"
)

// HealthHandler reports service liveness.
type HealthHandler struct {
	generationReady bool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(generationReady bool) *HealthHandler {
	return &HealthHandler{generationReady: generationReady}
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"generation_ready": h.generationReady,
	})
}
