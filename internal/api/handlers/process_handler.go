package handlers

import (
	"net/http"

	"github.com/kzhara/lathemind/backend/internal/application/services"
)

// ProcessHandler handles process management sheet uploads
type ProcessHandler struct {
	sheets *services.ProcessSheetService
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(sheets *services.ProcessSheetService) *ProcessHandler {
	return &ProcessHandler{sheets: sheets}
}

// Upload handles POST /api/process/upload with a "sheet" XLSX file field.
func (h *ProcessHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("sheet")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "sheet file is required")
		return
	}
	defer file.Close()

	sheet, err := h.sheets.Parse(file)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    sheet,
	})
}
