package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

// GenerationErrorKind classifies a failure of the generation capability.
type GenerationErrorKind string

const (
	GenerationErrorRateLimit GenerationErrorKind = "RATE_LIMIT"
	GenerationErrorTimeout   GenerationErrorKind = "TIMEOUT"
	GenerationErrorRejected  GenerationErrorKind = "REJECTED"
	GenerationErrorUnknown   GenerationErrorKind = "UNKNOWN"
)

// GenerationError is returned by a GenerationProvider when the external
// capability fails. RATE_LIMIT and TIMEOUT are transient and may be retried;
// REJECTED and UNKNOWN are surfaced without retry.
type GenerationError struct {
	Kind    GenerationErrorKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("generation %s: %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth another attempt.
func (e *GenerationError) Transient() bool {
	return e.Kind == GenerationErrorRateLimit || e.Kind == GenerationErrorTimeout
}

// NewGenerationError builds a classified generation failure.
func NewGenerationError(kind GenerationErrorKind, message string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Message: message, Err: err}
}

// ErrAnalysisUnavailable marks a failed drawing analysis. Callers recover by
// degrading to metadata-only retrieval instead of failing the request.
var ErrAnalysisUnavailable = errors.New("drawing analysis unavailable")

// GenerationProvider is the external capability that turns a composed
// context into raw program text.
type GenerationProvider interface {
	GenerateProgram(ctx context.Context, genCtx *entities.GenerationContext) (string, error)
}

// AnalysisProvider is the external capability that extracts machining
// features from a drawing image.
type AnalysisProvider interface {
	AnalyzeDrawing(ctx context.Context, image []byte, mimeType string) (*entities.DrawingAnalysis, error)
}
