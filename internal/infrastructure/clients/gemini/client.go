package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	"github.com/kzhara/lathemind/backend/pkg/config"
)

// Client talks to the Gemini generateContent REST API. It implements both
// the drawing analysis and the program generation capabilities.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *tokenBucket
}

// NewClient creates a new Gemini client.
func NewClient(cfg *config.GeminiConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst),
	}, nil
}

var (
	_ providers.GenerationProvider = (*Client)(nil)
	_ providers.AnalysisProvider   = (*Client)(nil)
)

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type responseEnvelope struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// AnalyzeDrawing extracts machining features from a drawing image. Any
// failure is wrapped in ErrAnalysisUnavailable so callers degrade to
// metadata-only retrieval instead of failing the request.
func (c *Client) AnalyzeDrawing(ctx context.Context, image []byte, mimeType string) (*entities.DrawingAnalysis, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", providers.ErrAnalysisUnavailable)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	req := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{
				{Text: analysisPrompt},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: generationConfig{Temperature: 0.2, MaxOutputTokens: 2000},
	}

	text, err := c.invoke(ctx, "analyze", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrAnalysisUnavailable, err)
	}

	analysis, err := parseAnalysisResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrAnalysisUnavailable, err)
	}
	return analysis, nil
}

// GenerateProgram produces raw NC program text from a composed context.
// Failures come back as classified GenerationError values.
func (c *Client) GenerateProgram(ctx context.Context, genCtx *entities.GenerationContext) (string, error) {
	if genCtx == nil {
		return "", providers.NewGenerationError(providers.GenerationErrorRejected, "generation context is required", nil)
	}

	req := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{{Text: buildGenerationPrompt(genCtx)}},
		}},
		GenerationConfig: generationConfig{Temperature: 0.3, MaxOutputTokens: 4000},
	}

	text, err := c.invoke(ctx, "generate", req)
	if err != nil {
		return "", err
	}

	return extractCodeBlock(text), nil
}

// invoke performs one generateContent call and maps transport failures onto
// the GenerationError taxonomy.
func (c *Client) invoke(ctx context.Context, operation string, payload generateRequest) (string, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			recordGeminiMetric(ctx, c.model, operation, 0, 0, err)
			return "", classifyTransportError(err)
		}
		recordGeminiRateLimitWait(ctx, c.model, time.Since(waitStart))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", providers.NewGenerationError(providers.GenerationErrorRejected, "failed to encode request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", providers.NewGenerationError(providers.GenerationErrorRejected, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordGeminiMetric(ctx, c.model, operation, 0, time.Since(start), err)
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("status %d", resp.StatusCode)
		recordGeminiMetric(ctx, c.model, operation, resp.StatusCode, time.Since(start), err)
		return "", classifyStatus(resp.StatusCode)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordGeminiMetric(ctx, c.model, operation, resp.StatusCode, time.Since(start), err)
		return "", providers.NewGenerationError(providers.GenerationErrorUnknown, "failed to decode response", err)
	}

	var text string
	for _, cand := range envelope.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			break
		}
	}

	if text == "" {
		err := errors.New("missing candidate text")
		recordGeminiMetric(ctx, c.model, operation, resp.StatusCode, time.Since(start), err)
		return "", providers.NewGenerationError(providers.GenerationErrorUnknown, "gemini response missing candidate text", nil)
	}

	recordGeminiMetric(ctx, c.model, operation, resp.StatusCode, time.Since(start), nil)
	return text, nil
}

func classifyStatus(status int) *providers.GenerationError {
	switch {
	case status == http.StatusTooManyRequests:
		return providers.NewGenerationError(providers.GenerationErrorRateLimit,
			fmt.Sprintf("gemini rate limited (status %d)", status), nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return providers.NewGenerationError(providers.GenerationErrorTimeout,
			fmt.Sprintf("gemini timed out (status %d)", status), nil)
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		return providers.NewGenerationError(providers.GenerationErrorRejected,
			fmt.Sprintf("gemini rejected the request (status %d)", status), nil)
	default:
		return providers.NewGenerationError(providers.GenerationErrorUnknown,
			fmt.Sprintf("gemini request failed (status %d)", status), nil)
	}
}

func classifyTransportError(err error) *providers.GenerationError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return providers.NewGenerationError(providers.GenerationErrorTimeout, "gemini call exceeded deadline", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return providers.NewGenerationError(providers.GenerationErrorTimeout, "gemini call timed out", err)
	case errors.Is(err, context.Canceled):
		return providers.NewGenerationError(providers.GenerationErrorRejected, "gemini call canceled", err)
	default:
		return providers.NewGenerationError(providers.GenerationErrorUnknown, "gemini call failed", err)
	}
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}

	bucket := &tokenBucket{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return bucket
}

type tokenBucket struct {
	tokens chan struct{}
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}
