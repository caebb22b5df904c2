package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
	"github.com/kzhara/lathemind/backend/pkg/retry"
)

// pipelineState tracks one synthesis invocation through the orchestrator.
type pipelineState string

const (
	stateComposed  pipelineState = "COMPOSED"
	stateInvoking  pipelineState = "INVOKING"
	stateRetrying  pipelineState = "RETRYING"
	stateSucceeded pipelineState = "SUCCEEDED"
	stateFailed    pipelineState = "FAILED"
)

// Structural rules checked on every generated program.
const (
	ruleProgramNumber = "program must begin with a program-number (O) line"
	ruleInstruction   = "program must contain at least one motion (G) or auxiliary (M) instruction"
)

// GenerationOptions tunes the orchestrator.
type GenerationOptions struct {
	// Retries is the number of extra attempts after the first on transient
	// capability failures.
	Retries int
	// RetryInitialDelay is the first backoff interval.
	RetryInitialDelay time.Duration
	// AnalysisCacheTTL bounds how long cached drawing analyses are reused.
	AnalysisCacheTTL time.Duration
}

// GenerationService orchestrates the synthesis pipeline: drawing analysis,
// exemplar retrieval, context composition and the generation call with its
// retry policy and structural validation. It never mutates the sample store
// or the index.
type GenerationService struct {
	retriever *RetrievalService
	composer  *ContextComposer
	generator providers.GenerationProvider
	analyzer  providers.AnalysisProvider
	cache     providers.CacheProvider
	opts      GenerationOptions
}

// NewGenerationService creates the orchestrator. analyzer and cache may be
// nil; analysis is then skipped or uncached respectively.
func NewGenerationService(
	retriever *RetrievalService,
	composer *ContextComposer,
	generator providers.GenerationProvider,
	analyzer providers.AnalysisProvider,
	cache providers.CacheProvider,
	opts GenerationOptions,
) *GenerationService {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryInitialDelay <= 0 {
		opts.RetryInitialDelay = 500 * time.Millisecond
	}
	return &GenerationService{
		retriever: retriever,
		composer:  composer,
		generator: generator,
		analyzer:  analyzer,
		cache:     cache,
		opts:      opts,
	}
}

// Synthesize runs the full pipeline for one request. Capability failures and
// structural validation failures come back as a result with Success=false;
// the returned error is reserved for invalid caller input.
func (s *GenerationService) Synthesize(ctx context.Context, req *entities.GenerationRequest, drawing []byte, drawingMime string) (*entities.GenerationResult, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("generation request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := observability.LoggerFromContext(ctx)
	result := &entities.GenerationResult{
		Warnings:          []string{},
		ReferencedSamples: []string{},
		GeneratedAt:       time.Now().UTC(),
	}

	// Step 1: drawing analysis, degrading to metadata-only retrieval when
	// the capability fails.
	if req.Analysis == nil && len(drawing) > 0 && s.analyzer != nil {
		analysis, err := s.analyzeDrawing(ctx, drawing, drawingMime)
		if err != nil {
			logger.Warn().Err(err).Msg("drawing analysis failed, continuing without it")
			result.Warnings = append(result.Warnings, "drawing analysis unavailable, retrieval used metadata only")
		} else {
			req.Analysis = analysis
		}
	}
	result.Analysis = req.Analysis

	// Step 2: exemplar retrieval.
	k := s.composer.MaxSamples()
	retrieved, err := s.retriever.Retrieve(ctx, req, k)
	if err != nil {
		return s.fail(ctx, result, fmt.Sprintf("exemplar retrieval failed: %v", err)), nil
	}
	if len(retrieved) == 0 {
		result.Warnings = append(result.Warnings, "no reference samples found for this request")
	}

	// Step 3: context composition.
	genCtx := s.composer.Compose(ctx, req, retrieved)
	if err := genCtx.Validate(k); err != nil {
		return s.fail(ctx, result, fmt.Sprintf("composed context invalid: %v", err)), nil
	}

	// Step 4: invocation with the retry state machine.
	raw, err := s.invoke(ctx, genCtx)
	if err != nil {
		return s.fail(ctx, result, failureReason(err)), nil
	}

	// Step 5: structural validation; unvalidated text is never surfaced.
	program := entities.NCProgram{Code: raw}
	if rule := validateStructure(program); rule != "" {
		result.Warnings = append(result.Warnings, rule)
		return s.fail(ctx, result, "generated program failed structural validation: "+rule), nil
	}

	if !program.HasEndCode() {
		result.Warnings = append(result.Warnings, "program has no end code (M30/M02)")
	}
	for _, code := range program.DangerousCodes() {
		result.Warnings = append(result.Warnings, fmt.Sprintf("program contains %s, review coordinate handling before running", code))
	}

	result.Success = true
	result.ProgramCode = raw
	result.ProgramNumber = program.ExtractProgramNumber()
	result.ReferencedSamples = detectReferencedSamples(raw, genCtx.Exemplars)

	logger.Info().
		Str("program_number", result.ProgramNumber).
		Int("exemplars", len(genCtx.Exemplars)).
		Int("referenced", len(result.ReferencedSamples)).
		Msg("program synthesized")

	return result, nil
}

// invoke drives the COMPOSED → INVOKING → {SUCCEEDED,RETRYING,FAILED} state
// machine. Only transient capability failures are retried.
func (s *GenerationService) invoke(ctx context.Context, genCtx *entities.GenerationContext) (string, error) {
	logger := observability.LoggerFromContext(ctx)
	state := stateComposed

	cfg := retry.Config{
		MaxAttempts:   s.opts.Retries + 1,
		InitialDelay:  s.opts.RetryInitialDelay,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		RetryIf: func(err error) bool {
			var genErr *providers.GenerationError
			return errors.As(err, &genErr) && genErr.Transient()
		},
	}

	var raw string
	err := retry.DoWithLog(ctx, cfg, "generation", func() error {
		state = stateInvoking
		text, err := s.generator.GenerateProgram(ctx, genCtx)
		if err != nil {
			return err
		}
		raw = text
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		state = stateRetrying
		logger.Warn().
			Int("attempt", attempt).
			Err(err).
			Dur("next_delay", nextDelay).
			Msg("transient generation failure, retrying")
	})

	if err != nil {
		state = stateFailed
		logger.Error().Str("state", string(state)).Err(err).Msg("generation failed")
		return "", err
	}

	state = stateSucceeded
	logger.Debug().Str("state", string(state)).Msg("generation capability returned")
	return raw, nil
}

// analyzeDrawing consults the analysis cache before calling the capability.
// Cache keys are content hashes so re-uploaded drawings hit.
func (s *GenerationService) analyzeDrawing(ctx context.Context, drawing []byte, mime string) (*entities.DrawingAnalysis, error) {
	key := analysisCacheKey(drawing)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var cached entities.DrawingAnalysis
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	analysis, err := s.analyzer.AnalyzeDrawing(ctx, drawing, mime)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(analysis); err == nil {
			_ = s.cache.Set(ctx, key, data, s.opts.AnalysisCacheTTL)
		}
	}

	return analysis, nil
}

func analysisCacheKey(drawing []byte) string {
	sum := sha256.Sum256(drawing)
	return "analysis:" + hex.EncodeToString(sum[:])
}

func (s *GenerationService) fail(ctx context.Context, result *entities.GenerationResult, reason string) *entities.GenerationResult {
	observability.LoggerFromContext(ctx).Error().Str("reason", reason).Msg("synthesis failed")
	result.Success = false
	result.FailureReason = reason
	return result
}

// failureReason maps a capability failure to the human-readable reason a
// failed result carries.
func failureReason(err error) string {
	var genErr *providers.GenerationError
	if errors.As(err, &genErr) {
		switch genErr.Kind {
		case providers.GenerationErrorRejected:
			return "generation capability rejected the request: " + genErr.Message
		case providers.GenerationErrorRateLimit, providers.GenerationErrorTimeout:
			return "generation capability unavailable after retries: " + genErr.Message
		default:
			return "generation capability failed: " + genErr.Message
		}
	}
	return "generation failed: " + err.Error()
}

// validateStructure returns the violated rule, or "" when the program is
// structurally sound.
func validateStructure(program entities.NCProgram) string {
	if strings.TrimSpace(program.Code) == "" || !program.HasProgramNumber() {
		return ruleProgramNumber
	}
	if !program.HasInstruction() {
		return ruleInstruction
	}
	return ""
}

// detectReferencedSamples reports which exemplars the generated text appears
// to reuse, by matching characteristic program fragments. This is a
// heuristic, not a guarantee.
func detectReferencedSamples(generated string, exemplars []entities.Exemplar) []string {
	referenced := []string{}
	for _, ex := range exemplars {
		for _, fragment := range exemplarFragments(ex.ProgramCode, 3) {
			if strings.Contains(generated, fragment) {
				referenced = append(referenced, ex.SampleID)
				break
			}
		}
	}
	return referenced
}

// exemplarFragments picks up to n significant lines of a program to match
// against. Comments, blanks and very short lines carry no signal.
func exemplarFragments(program string, n int) []string {
	var fragments []string
	for _, block := range (entities.NCProgram{Code: program}).Blocks() {
		if block.IsComment || len(block.Content) < 8 {
			continue
		}
		fragments = append(fragments, block.Content)
		if len(fragments) == n {
			break
		}
	}
	return fragments
}
