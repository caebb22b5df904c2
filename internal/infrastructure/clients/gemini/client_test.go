package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	"github.com/kzhara/lathemind/backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.0-flash",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return client, server
}

func candidateResponse(text string) string {
	payload := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func testContext() *entities.GenerationContext {
	return &entities.GenerationContext{Directive: "Machining conditions:\n- material: SUS304"}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&config.GeminiConfig{})
	assert.Error(t, err)

	_, err = NewClient(nil)
	assert.Error(t, err)
}

func TestGenerateProgram_StripsCodeFence(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:generateContent")
		_, _ = w.Write([]byte(candidateResponse("```nc\nO0001\nG28 U0 W0\nM30\n```")))
	})

	text, err := client.GenerateProgram(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, "O0001\nG28 U0 W0\nM30", text)
}

func TestGenerateProgram_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   providers.GenerationErrorKind
	}{
		{http.StatusTooManyRequests, providers.GenerationErrorRateLimit},
		{http.StatusGatewayTimeout, providers.GenerationErrorTimeout},
		{http.StatusBadRequest, providers.GenerationErrorRejected},
		{http.StatusInternalServerError, providers.GenerationErrorUnknown},
	}

	for _, tc := range cases {
		status := tc.status
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := client.GenerateProgram(context.Background(), testContext())
		require.Error(t, err)

		var genErr *providers.GenerationError
		require.True(t, errors.As(err, &genErr), "status %d", tc.status)
		assert.Equal(t, tc.kind, genErr.Kind, "status %d", tc.status)
	}
}

func TestGenerateProgram_MissingCandidateText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	})

	_, err := client.GenerateProgram(context.Background(), testContext())
	require.Error(t, err)

	var genErr *providers.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, providers.GenerationErrorUnknown, genErr.Kind)
	assert.False(t, genErr.Transient())
}

func TestGenerateProgram_NilContextRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.GenerateProgram(context.Background(), nil)
	var genErr *providers.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, providers.GenerationErrorRejected, genErr.Kind)
}

func TestAnalyzeDrawing_ParsesResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.NotNil(t, req.Contents[0].Parts[1].InlineData)
		assert.Equal(t, "image/png", req.Contents[0].Parts[1].InlineData.MimeType)

		_, _ = w.Write([]byte(candidateResponse("```json\n{\"process_type\": \"grooving\", \"features\": [\"groove\"]}\n```")))
	})

	analysis, err := client.AnalyzeDrawing(context.Background(), []byte{0x89, 0x50}, "")
	require.NoError(t, err)
	assert.Equal(t, entities.MachiningTypeGrooving, analysis.ProcessType)
	assert.Equal(t, []string{"groove"}, analysis.Features)
}

func TestAnalyzeDrawing_FailuresWrapSentinel(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.AnalyzeDrawing(context.Background(), []byte{0x01}, "image/png")
	assert.True(t, errors.Is(err, providers.ErrAnalysisUnavailable))

	_, err = client.AnalyzeDrawing(context.Background(), nil, "image/png")
	assert.True(t, errors.Is(err, providers.ErrAnalysisUnavailable))
}

func TestGenerationErrorTransient(t *testing.T) {
	assert.True(t, providers.NewGenerationError(providers.GenerationErrorRateLimit, "", nil).Transient())
	assert.True(t, providers.NewGenerationError(providers.GenerationErrorTimeout, "", nil).Transient())
	assert.False(t, providers.NewGenerationError(providers.GenerationErrorRejected, "", nil).Transient())
	assert.False(t, providers.NewGenerationError(providers.GenerationErrorUnknown, "", nil).Transient())
}
