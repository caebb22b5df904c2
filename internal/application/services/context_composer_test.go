package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

func composerRequest() *entities.GenerationRequest {
	return &entities.GenerationRequest{
		Conditions: entities.MachiningConditions{
			Material:     "sus304",
			SpindleSpeed: 1200,
			FeedRate:     0.25,
			Coolant:      true,
			ToolNumber:   "T0101",
		},
		Process: entities.ProcessInfo{Name: "OD rough", Type: "turning", Sequence: 1},
	}
}

func scoredSample(id, program string) ScoredSample {
	return ScoredSample{
		Sample: &entities.Sample{
			ID:          id,
			ProgramCode: program,
			Metadata:    entities.SampleMetadata{Name: id, Material: "SUS304", MachiningType: entities.MachiningTypeOuterDiameter},
		},
		Score: 10,
	}
}

func TestCompose_EmptyRetrievalStillValid(t *testing.T) {
	c := NewContextComposer(3, 0)

	genCtx := c.Compose(context.Background(), composerRequest(), nil)

	require.NotNil(t, genCtx)
	assert.NotEmpty(t, genCtx.Directive)
	assert.Empty(t, genCtx.Exemplars)
	assert.NoError(t, genCtx.Validate(3))
}

func TestCompose_CapsExemplars(t *testing.T) {
	c := NewContextComposer(2, 0)

	retrieved := []ScoredSample{
		scoredSample("s1", "O0001\nG01 X10.0\nM30"),
		scoredSample("s2", "O0002\nG01 X12.0\nM30"),
		scoredSample("s3", "O0003\nG01 X14.0\nM30"),
	}
	genCtx := c.Compose(context.Background(), composerRequest(), retrieved)

	require.Len(t, genCtx.Exemplars, 2)
	assert.Equal(t, "s1", genCtx.Exemplars[0].SampleID)
	assert.Equal(t, "s2", genCtx.Exemplars[1].SampleID)
	assert.NoError(t, genCtx.Validate(2))
}

func TestCompose_DropsDuplicates(t *testing.T) {
	c := NewContextComposer(3, 0)

	retrieved := []ScoredSample{
		scoredSample("s1", "O0001\nG01 X10.0\nM30"),
		scoredSample("s1", "O0001\nG01 X10.0\nM30"),
		scoredSample("s2", "O0002\nG01 X12.0\nM30"),
	}
	genCtx := c.Compose(context.Background(), composerRequest(), retrieved)

	require.Len(t, genCtx.Exemplars, 2)
	assert.NoError(t, genCtx.Validate(3))
}

func TestCompose_TruncatesOversizedExemplars(t *testing.T) {
	c := NewContextComposer(3, 40)

	long := "O0001\n" + strings.Repeat("G01 X10.0 Z-1.0 F0.2\n", 20)
	genCtx := c.Compose(context.Background(), composerRequest(), []ScoredSample{scoredSample("s1", long)})

	require.Len(t, genCtx.Exemplars, 1)
	ex := genCtx.Exemplars[0]
	assert.True(t, ex.Truncated)
	assert.True(t, strings.HasSuffix(ex.ProgramCode, truncationMarker))
	assert.Len(t, ex.ProgramCode, 40+len(truncationMarker))
}

func TestBuildDirective_Deterministic(t *testing.T) {
	req := composerRequest()
	req.Analysis = &entities.DrawingAnalysis{
		ProcessType: entities.MachiningTypeOuterDiameter,
		Features:    []string{"chamfer", "groove"},
		Dimensions:  map[string]float64{"length": 60, "diameter": 30, "bore": 12},
	}

	first := buildDirective(req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, buildDirective(req))
	}

	// map iteration must not leak into the rendered order
	assert.Contains(t, first, "dimensions: bore=12 diameter=30 length=60")
}

func TestBuildDirective_CoversConditions(t *testing.T) {
	directive := buildDirective(composerRequest())

	assert.Contains(t, directive, "material: SUS304")
	assert.Contains(t, directive, "spindle speed: 1200 rpm")
	assert.Contains(t, directive, "feed rate: 0.25 mm/rev")
	assert.Contains(t, directive, "coolant: on")
	assert.Contains(t, directive, "tool number: T0101")
	assert.Contains(t, directive, "coordinate system: N/A")
	assert.Contains(t, directive, "name: OD rough")
	assert.NotContains(t, directive, "Drawing analysis")
}

func TestGenerationContextValidate(t *testing.T) {
	genCtx := &entities.GenerationContext{Directive: "do the thing"}
	assert.NoError(t, genCtx.Validate(3))

	genCtx.Directive = ""
	assert.Error(t, genCtx.Validate(3))

	genCtx.Directive = "do the thing"
	genCtx.Exemplars = []entities.Exemplar{{SampleID: "a"}, {SampleID: "a"}}
	assert.Error(t, genCtx.Validate(3))

	genCtx.Exemplars = []entities.Exemplar{{SampleID: "a"}, {SampleID: "b"}, {SampleID: "c"}, {SampleID: "d"}}
	assert.Error(t, genCtx.Validate(3))
}
