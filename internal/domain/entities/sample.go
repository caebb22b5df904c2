package entities

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

// SampleMetadata is the structured metadata attached to every stored sample.
// Material is free text kept in uppercase; tags are a lowercase set.
type SampleMetadata struct {
	Name          string        `json:"name" db:"name"`
	Material      string        `json:"material" db:"material"`
	MachiningType MachiningType `json:"machining_type" db:"machining_type"`
	Tags          []string      `json:"tags" db:"tags"`
	SpindleSpeed  float64       `json:"spindle_speed,omitempty" db:"spindle_speed"`
	FeedRate      float64       `json:"feed_rate,omitempty" db:"feed_rate"`
}

// Normalize canonicalizes the comparable fields: material uppercase, tags
// lowercase, deduplicated and sorted.
func (m *SampleMetadata) Normalize() {
	m.Material = strings.ToUpper(strings.TrimSpace(m.Material))
	seen := make(map[string]bool, len(m.Tags))
	tags := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	m.Tags = tags
}

// Validate ensures the sample can be indexed and retrieved later.
func (m *SampleMetadata) Validate() error {
	if strings.TrimSpace(m.Material) == "" {
		return apperrors.NewValidationError("sample metadata requires a material")
	}
	if !m.MachiningType.IsValid() {
		return apperrors.NewValidationError("sample metadata requires a valid machining type")
	}
	return nil
}

// Sample is an accepted historical program kept as a retrieval exemplar.
// Samples are immutable once registered; updates are delete + re-register.
type Sample struct {
	ID            string         `json:"id" db:"id"`
	ProgramCode   string         `json:"program_code" db:"program_code"`
	DrawingBlobID string         `json:"drawing_blob_id,omitempty" db:"drawing_blob_id"`
	Metadata      SampleMetadata `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// Validate checks the registration invariants.
func (s *Sample) Validate() error {
	if strings.TrimSpace(s.ProgramCode) == "" {
		return apperrors.NewValidationError("sample requires non-empty program code")
	}
	return s.Metadata.Validate()
}

// HasDrawing reports whether a drawing blob is attached.
func (s *Sample) HasDrawing() bool {
	return s.DrawingBlobID != ""
}
