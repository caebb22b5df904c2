package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/providers"
)

const validProgram = "O0001\nG28 U0 W0\nG01 X10.0 F0.2\nM30"

// fakeGenerator scripts a sequence of responses for GenerateProgram.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []func() (string, error)
	calls     int
	lastCtx   *entities.GenerationContext
}

func (f *fakeGenerator) GenerateProgram(ctx context.Context, genCtx *entities.GenerationContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = genCtx
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i]()
}

func respond(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func respondErr(kind providers.GenerationErrorKind) func() (string, error) {
	return func() (string, error) {
		return "", providers.NewGenerationError(kind, "scripted failure", nil)
	}
}

type fakeAnalyzer struct {
	analysis *entities.DrawingAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) AnalyzeDrawing(ctx context.Context, image []byte, mimeType string) (*entities.DrawingAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func newGenerationService(t *testing.T, f *retrievalFixture, gen *fakeGenerator, analyzer providers.AnalysisProvider, cache providers.CacheProvider) *GenerationService {
	t.Helper()
	return NewGenerationService(
		f.svc,
		NewContextComposer(3, 4000),
		gen,
		analyzer,
		cache,
		GenerationOptions{Retries: 2, RetryInitialDelay: time.Millisecond},
	)
}

func TestSynthesize_Success(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10, "chamfer")

	gen := &fakeGenerator{responses: []func() (string, error){respond(validProgram)}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, validProgram, result.ProgramCode)
	assert.Equal(t, "O0001", result.ProgramNumber)
	assert.Empty(t, result.FailureReason)
	assert.Equal(t, 1, gen.calls)
	require.NotNil(t, gen.lastCtx)
	assert.Len(t, gen.lastCtx.Exemplars, 1)
}

func TestSynthesize_TransientFailuresAreRetried(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	gen := &fakeGenerator{responses: []func() (string, error){
		respondErr(providers.GenerationErrorTimeout),
		respondErr(providers.GenerationErrorTimeout),
		respond(validProgram),
	}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, gen.calls)
}

func TestSynthesize_TransientFailureExhaustsRetries(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	gen := &fakeGenerator{responses: []func() (string, error){respondErr(providers.GenerationErrorRateLimit)}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.FailureReason, "unavailable after retries")
	assert.Equal(t, 3, gen.calls)
}

func TestSynthesize_RejectionIsNotRetried(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	gen := &fakeGenerator{responses: []func() (string, error){respondErr(providers.GenerationErrorRejected)}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.FailureReason, "rejected")
	assert.Equal(t, 1, gen.calls)
}

func TestSynthesize_StructurallyInvalidOutputFails(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	gen := &fakeGenerator{responses: []func() (string, error){respond("G01 X10.0 F0.2\nM30")}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.ProgramCode)
	assert.Contains(t, result.FailureReason, ruleProgramNumber)
	assert.Contains(t, result.Warnings, ruleProgramNumber)
}

func TestSynthesize_WarnsOnMissingEndCodeAndDangerousCodes(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	gen := &fakeGenerator{responses: []func() (string, error){respond("O0001\nG92 X0 Z0\nG01 X10.0 F0.2")}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Warnings, "program has no end code (M30/M02)")

	foundDangerous := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "G92") {
			foundDangerous = true
		}
	}
	assert.True(t, foundDangerous)
}

func TestSynthesize_DetectsReferencedSamples(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	// the scripted output reuses a characteristic line of the exemplar
	out := "O0002\nG01 X10.0 F0.2\nM30"
	gen := &fakeGenerator{responses: []func() (string, error){respond(out)}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", entities.MachiningTypeOuterDiameter), nil, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"s1"}, result.ReferencedSamples)
}

func TestSynthesize_AnalysisFailureDegradesGracefully(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	analyzer := &fakeAnalyzer{err: providers.ErrAnalysisUnavailable}
	gen := &fakeGenerator{responses: []func() (string, error){respond(validProgram)}}
	svc := newGenerationService(t, f, gen, analyzer, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", ""), []byte("fake-image"), "image/png")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Nil(t, result.Analysis)
	assert.Contains(t, result.Warnings, "drawing analysis unavailable, retrieval used metadata only")
}

func TestSynthesize_AnalysisResultIsCached(t *testing.T) {
	f := newRetrievalFixture(t)
	f.add(t, "s1", "SUS304", entities.MachiningTypeOuterDiameter, 10)

	analyzer := &fakeAnalyzer{analysis: &entities.DrawingAnalysis{
		ProcessType: entities.MachiningTypeOuterDiameter,
		Features:    []string{"chamfer"},
	}}
	cache := newFakeCache()
	gen := &fakeGenerator{responses: []func() (string, error){respond(validProgram)}}
	svc := newGenerationService(t, f, gen, analyzer, cache)

	drawing := []byte("same-image-bytes")
	for i := 0; i < 2; i++ {
		result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", ""), drawing, "image/png")
		require.NoError(t, err)
		require.True(t, result.Success)
		require.NotNil(t, result.Analysis)
		assert.Equal(t, entities.MachiningTypeOuterDiameter, result.Analysis.ProcessType)
	}

	assert.Equal(t, 1, analyzer.calls)
}

func TestSynthesize_InvalidRequestIsAnError(t *testing.T) {
	f := newRetrievalFixture(t)
	gen := &fakeGenerator{responses: []func() (string, error){respond(validProgram)}}
	svc := newGenerationService(t, f, gen, nil, nil)

	_, err := svc.Synthesize(context.Background(), nil, nil, "")
	assert.Error(t, err)

	_, err = svc.Synthesize(context.Background(), &entities.GenerationRequest{}, nil, "")
	assert.Error(t, err)
	assert.Equal(t, 0, gen.calls)
}

func TestSynthesize_EmptyCorpusStillGenerates(t *testing.T) {
	f := newRetrievalFixture(t)

	gen := &fakeGenerator{responses: []func() (string, error){respond(validProgram)}}
	svc := newGenerationService(t, f, gen, nil, nil)

	result, err := svc.Synthesize(context.Background(), analysisRequest("SUS304", ""), nil, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Warnings, "no reference samples found for this request")
	require.NotNil(t, gen.lastCtx)
	assert.Empty(t, gen.lastCtx.Exemplars)
}

func TestValidateStructure(t *testing.T) {
	assert.Equal(t, ruleProgramNumber, validateStructure(entities.NCProgram{Code: ""}))
	assert.Equal(t, ruleProgramNumber, validateStructure(entities.NCProgram{Code: "G01 X1.0"}))
	assert.Equal(t, ruleInstruction, validateStructure(entities.NCProgram{Code: "O0001\n(NOTHING ELSE)"}))
	assert.Equal(t, "", validateStructure(entities.NCProgram{Code: validProgram}))

	// leading comments before the O-number are tolerated
	assert.Equal(t, "", validateStructure(entities.NCProgram{Code: "(HEADER)\nO0001\nM30"}))
}
