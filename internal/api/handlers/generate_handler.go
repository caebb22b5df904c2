package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

// Synthesizer is the handler-facing contract of the generation pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *entities.GenerationRequest, drawing []byte, drawingMime string) (*entities.GenerationResult, error)
}

// GenerateHandler handles program synthesis requests
type GenerateHandler struct {
	synthesizer Synthesizer
}

// NewGenerateHandler creates a new generate handler. synthesizer may be nil
// when no generation capability is configured.
func NewGenerateHandler(synthesizer Synthesizer) *GenerateHandler {
	return &GenerateHandler{synthesizer: synthesizer}
}

// Generate handles POST /api/generate. The body is multipart form data:
// "conditions" (JSON), "process" (JSON) and an optional "drawing" file.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.synthesizer == nil {
		respondWithError(w, http.StatusServiceUnavailable, "program generation is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := &entities.GenerationRequest{}
	if raw := r.FormValue("conditions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Conditions); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid conditions JSON")
			return
		}
	}
	if raw := r.FormValue("process"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Process); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid process JSON")
			return
		}
	}

	var drawing []byte
	var drawingMime string
	if file, header, err := r.FormFile("drawing"); err == nil {
		defer file.Close()
		drawing, err = io.ReadAll(io.LimitReader(file, maxUploadSize))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "failed to read drawing upload")
			return
		}
		drawingMime = header.Header.Get("Content-Type")
	}

	result, err := h.synthesizer.Synthesize(r.Context(), req, drawing, drawingMime)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
