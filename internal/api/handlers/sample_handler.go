package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/application/services"
	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

const maxUploadSize = 10 << 20 // 10 MiB

// SampleHandler handles knowledge base sample requests
type SampleHandler struct {
	knowledge *services.KnowledgeService
}

// NewSampleHandler creates a new sample handler
func NewSampleHandler(knowledge *services.KnowledgeService) *SampleHandler {
	return &SampleHandler{knowledge: knowledge}
}

// RegisterSample handles POST /api/samples. The body is multipart form
// data: "program" (text), "metadata" (JSON) and an optional "drawing" file.
func (h *SampleHandler) RegisterSample(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	programCode := r.FormValue("program")

	var meta entities.SampleMetadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid metadata JSON")
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

	id, err := h.knowledge.RegisterSample(r.Context(), programCode, drawing, drawingMime, meta)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// SearchSamples handles GET /api/samples with optional material, type and
// tags query parameters.
func (h *SampleHandler) SearchSamples(w http.ResponseWriter, r *http.Request) {
	filter := search.Filter{
		Material: r.URL.Query().Get("material"),
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		mt, err := entities.ParseMachiningType(raw)
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		filter.MachiningType = mt
	}
	if raw := r.URL.Query().Get("tags"); raw != "" {
		filter.Tags = strings.Split(raw, ",")
	}

	samples, err := h.knowledge.SearchSamples(r.Context(), filter)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"samples": samples,
		"count":   len(samples),
	})
}

// GetSample handles GET /api/samples/{id}
func (h *SampleHandler) GetSample(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "sample ID is required")
		return
	}

	sample, err := h.knowledge.GetSample(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sample)
}

// GetDrawing handles GET /api/samples/{id}/drawing
func (h *SampleHandler) GetDrawing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "sample ID is required")
		return
	}

	data, mime, err := h.knowledge.GetDrawing(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	if mime == "" {
		mime = "image/png"
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeleteSample handles DELETE /api/samples/{id}
func (h *SampleHandler) DeleteSample(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "sample ID is required")
		return
	}

	deleted, err := h.knowledge.DeleteSample(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// RebuildIndex handles POST /api/samples/reindex
func (h *SampleHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	count, err := h.knowledge.RebuildIndex(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"samples": count})
}
