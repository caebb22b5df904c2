package entities

import (
	"time"

	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

// DrawingAnalysis is the structured output of the external image analysis
// capability. It is optional on a request; retrieval degrades to
// metadata-only matching when absent.
type DrawingAnalysis struct {
	ProcessType   MachiningType      `json:"process_type"`
	Features      []string           `json:"features"`
	Dimensions    map[string]float64 `json:"dimensions"`
	Tolerances    string             `json:"tolerances,omitempty"`
	SurfaceFinish string             `json:"surface_finish,omitempty"`
}

// GenerationRequest is the ephemeral input to one synthesis invocation.
type GenerationRequest struct {
	Conditions    MachiningConditions `json:"conditions"`
	Process       ProcessInfo         `json:"process"`
	Analysis      *DrawingAnalysis    `json:"analysis,omitempty"`
	DrawingBlobID string              `json:"drawing_blob_id,omitempty"`
}

// Validate checks the request is complete enough to attempt retrieval.
func (r *GenerationRequest) Validate() error {
	return r.Conditions.Validate()
}

// MachiningType returns the machining type detected by drawing analysis, or
// the empty value when no analysis is available.
func (r *GenerationRequest) MachiningType() MachiningType {
	if r.Analysis != nil && r.Analysis.ProcessType.IsValid() {
		return r.Analysis.ProcessType
	}
	return ""
}

// Tags returns the request-side tag set derived from detected drawing
// features, normalized the same way sample tags are.
func (r *GenerationRequest) Tags() []string {
	if r.Analysis == nil || len(r.Analysis.Features) == 0 {
		return nil
	}
	meta := SampleMetadata{Tags: r.Analysis.Features}
	meta.Normalize()
	return meta.Tags
}

// Exemplar is one retrieved sample embedded into a generation context.
type Exemplar struct {
	SampleID    string         `json:"sample_id"`
	Score       float64        `json:"score"`
	ProgramCode string         `json:"program_code"`
	Metadata    SampleMetadata `json:"metadata"`
	Truncated   bool           `json:"truncated"`
}

// GenerationContext is the bounded payload handed to the generation
// capability: a deterministic task directive plus at most the configured
// number of distinct exemplars ordered by descending relevance.
type GenerationContext struct {
	Directive string            `json:"directive"`
	Exemplars []Exemplar        `json:"exemplars"`
	Request   GenerationRequest `json:"request"`
}

// Validate enforces the context invariants before invocation.
func (c *GenerationContext) Validate(maxExemplars int) error {
	if c.Directive == "" {
		return apperrors.NewValidationError("generation context requires a directive")
	}
	if maxExemplars > 0 && len(c.Exemplars) > maxExemplars {
		return apperrors.NewValidationError("generation context exceeds exemplar limit")
	}
	seen := make(map[string]bool, len(c.Exemplars))
	for _, ex := range c.Exemplars {
		if seen[ex.SampleID] {
			return apperrors.NewValidationError("generation context contains duplicate exemplars")
		}
		seen[ex.SampleID] = true
	}
	return nil
}

// GenerationResult is the validated outcome of one synthesis invocation.
// A failed synthesis is still a result: Success is false and FailureReason
// carries a human-readable explanation.
type GenerationResult struct {
	Success           bool             `json:"success"`
	ProgramCode       string           `json:"program_code,omitempty"`
	ProgramNumber     string           `json:"program_number,omitempty"`
	Warnings          []string         `json:"warnings"`
	ReferencedSamples []string         `json:"referenced_samples"`
	Analysis          *DrawingAnalysis `json:"analysis,omitempty"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	GeneratedAt       time.Time        `json:"generated_at"`
}
