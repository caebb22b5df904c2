package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
)

const truncationMarker = "\n... (truncated)"

// ContextComposer assembles retrieved exemplars and the request into the
// bounded payload handed to the generation capability.
type ContextComposer struct {
	maxSamples       int
	maxExemplarChars int
}

// NewContextComposer creates a composer. maxExemplarChars bounds each
// exemplar program; zero disables truncation.
func NewContextComposer(maxSamples, maxExemplarChars int) *ContextComposer {
	if maxSamples <= 0 {
		maxSamples = 3
	}
	return &ContextComposer{
		maxSamples:       maxSamples,
		maxExemplarChars: maxExemplarChars,
	}
}

// MaxSamples returns the exemplar bound of composed contexts.
func (c *ContextComposer) MaxSamples() int {
	return c.maxSamples
}

// Compose builds a generation context. Retrieved duplicates are dropped
// defensively and oversized exemplar programs are truncated with an explicit
// marker; both degradations are logged, never silent.
func (c *ContextComposer) Compose(ctx context.Context, req *entities.GenerationRequest, retrieved []ScoredSample) *entities.GenerationContext {
	logger := observability.LoggerFromContext(ctx)

	exemplars := make([]entities.Exemplar, 0, c.maxSamples)
	seen := make(map[string]bool, len(retrieved))
	for _, cand := range retrieved {
		if len(exemplars) == c.maxSamples {
			break
		}
		if cand.Sample == nil || seen[cand.Sample.ID] {
			continue
		}
		seen[cand.Sample.ID] = true

		program := cand.Sample.ProgramCode
		truncated := false
		if c.maxExemplarChars > 0 && len(program) > c.maxExemplarChars {
			program = program[:c.maxExemplarChars] + truncationMarker
			truncated = true
			logger.Warn().
				Str("sample_id", cand.Sample.ID).
				Int("limit", c.maxExemplarChars).
				Msg("exemplar program truncated for context")
		}

		exemplars = append(exemplars, entities.Exemplar{
			SampleID:    cand.Sample.ID,
			Score:       cand.Score,
			ProgramCode: program,
			Metadata:    cand.Sample.Metadata,
			Truncated:   truncated,
		})
	}

	return &entities.GenerationContext{
		Directive: buildDirective(req),
		Exemplars: exemplars,
		Request:   *req,
	}
}

// buildDirective renders the machining conditions, process info and analysis
// summary in a fixed, fully-qualified field order so identical requests
// always produce identical directives.
func buildDirective(req *entities.GenerationRequest) string {
	var b strings.Builder

	cond := req.Conditions
	b.WriteString("Machining conditions:\n")
	fmt.Fprintf(&b, "- material: %s\n", cond.NormalizedMaterial())
	fmt.Fprintf(&b, "- spindle speed: %g rpm\n", cond.SpindleSpeed)
	fmt.Fprintf(&b, "- feed rate: %g mm/rev\n", cond.FeedRate)
	fmt.Fprintf(&b, "- depth of cut: %g mm\n", cond.DepthOfCut)
	fmt.Fprintf(&b, "- coolant: %s\n", coolantLabel(cond.Coolant))
	fmt.Fprintf(&b, "- tool number: %s\n", orNA(cond.ToolNumber))
	fmt.Fprintf(&b, "- coordinate system: %s\n", orNA(cond.CoordinateSystem))

	proc := req.Process
	b.WriteString("Process:\n")
	fmt.Fprintf(&b, "- name: %s\n", orNA(proc.Name))
	fmt.Fprintf(&b, "- type: %s\n", orNA(proc.Type))
	fmt.Fprintf(&b, "- sequence: %d\n", proc.Sequence)
	fmt.Fprintf(&b, "- notes: %s\n", orNA(proc.Notes))

	if req.Analysis != nil {
		b.WriteString("Drawing analysis:\n")
		fmt.Fprintf(&b, "- process type: %s\n", req.Analysis.ProcessType)
		fmt.Fprintf(&b, "- features: %s\n", orNA(strings.Join(req.Analysis.Features, ", ")))
		b.WriteString(formatDimensions(req.Analysis.Dimensions))
		if req.Analysis.Tolerances != "" {
			fmt.Fprintf(&b, "- tolerances: %s\n", req.Analysis.Tolerances)
		}
		if req.Analysis.SurfaceFinish != "" {
			fmt.Fprintf(&b, "- surface finish: %s\n", req.Analysis.SurfaceFinish)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatDimensions renders dimensions in sorted key order for determinism.
func formatDimensions(dims map[string]float64) string {
	if len(dims) == 0 {
		return ""
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("- dimensions:")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%g", k, dims[k])
	}
	b.WriteString("\n")
	return b.String()
}

func coolantLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
