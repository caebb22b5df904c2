package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzhara/lathemind/backend/internal/adapters/blob"
	"github.com/kzhara/lathemind/backend/internal/adapters/memory"
	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/application/services"
)

func newSampleHandler() *SampleHandler {
	knowledge := services.NewKnowledgeService(memory.NewSampleAdapter(), search.NewMetadataIndex(), blob.NewMemoryAdapter())
	return NewSampleHandler(knowledge)
}

func multipartSampleBody(t *testing.T, program, metadata string, drawing []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	require.NoError(t, writer.WriteField("program", program))
	if metadata != "" {
		require.NoError(t, writer.WriteField("metadata", metadata))
	}
	if drawing != nil {
		part, err := writer.CreateFormFile("drawing", "drawing.png")
		require.NoError(t, err)
		_, err = part.Write(drawing)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func registerTestSample(t *testing.T, h *SampleHandler) string {
	t.Helper()
	metadata := `{"name": "SUS304 shaft", "material": "SUS304", "machining_type": "outer_diameter", "tags": ["chamfer"]}`
	body, contentType := multipartSampleBody(t, "O0001\nG01 X10.0\nM30", metadata, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/samples", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.RegisterSample(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])
	return resp["id"]
}

func TestRegisterSample_Created(t *testing.T) {
	h := newSampleHandler()
	id := registerTestSample(t, h)
	assert.NotEmpty(t, id)
}

func TestRegisterSample_InvalidMetadata(t *testing.T) {
	h := newSampleHandler()

	body, contentType := multipartSampleBody(t, "O0001\nM30", "{not json", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/samples", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.RegisterSample(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterSample_ValidationFailure(t *testing.T) {
	h := newSampleHandler()

	// missing material
	body, contentType := multipartSampleBody(t, "O0001\nM30", `{"machining_type": "facing"}`, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/samples", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.RegisterSample(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSample(t *testing.T) {
	h := newSampleHandler()
	id := registerTestSample(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/samples/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.GetSample(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var sample map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sample))
	assert.Equal(t, id, sample["id"])
}

func TestGetSample_NotFound(t *testing.T) {
	h := newSampleHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/samples/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetSample(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchSamples_FilterByMaterial(t *testing.T) {
	h := newSampleHandler()
	registerTestSample(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/samples?material=SUS304&type=outer_diameter", nil)
	rec := httptest.NewRecorder()
	h.SearchSamples(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestSearchSamples_UnknownTypeRejected(t *testing.T) {
	h := newSampleHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/samples?type=milling", nil)
	rec := httptest.NewRecorder()
	h.SearchSamples(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDrawing_RoundTrip(t *testing.T) {
	h := newSampleHandler()

	drawing := []byte{0x89, 0x50, 0x4e, 0x47}
	metadata := `{"material": "SUS304", "machining_type": "facing"}`
	body, contentType := multipartSampleBody(t, "O0001\nM30", metadata, drawing)

	req := httptest.NewRequest(http.MethodPost, "/api/samples", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.RegisterSample(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	get := httptest.NewRequest(http.MethodGet, "/api/samples/"+resp["id"]+"/drawing", nil)
	get.SetPathValue("id", resp["id"])
	getRec := httptest.NewRecorder()
	h.GetDrawing(getRec, get)

	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, drawing, getRec.Body.Bytes())
}

func TestDeleteSample_Idempotent(t *testing.T) {
	h := newSampleHandler()
	id := registerTestSample(t, h)

	del := func() map[string]bool {
		req := httptest.NewRequest(http.MethodDelete, "/api/samples/"+id, nil)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.DeleteSample(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	assert.True(t, del()["deleted"])
	assert.False(t, del()["deleted"])
}

func TestRebuildIndex(t *testing.T) {
	h := newSampleHandler()
	registerTestSample(t, h)

	req := httptest.NewRequest(http.MethodPost, "/api/samples/reindex", nil)
	rec := httptest.NewRecorder()
	h.RebuildIndex(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["samples"])
}
