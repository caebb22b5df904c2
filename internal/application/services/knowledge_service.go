package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	"github.com/kzhara/lathemind/backend/internal/domain/repositories"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

// KnowledgeService owns the sample store and its metadata index. Every
// mutation runs store write and index update inside one critical section, so
// a caller that finished a mutation never observes a stale index.
type KnowledgeService struct {
	repo  repositories.SampleRepository
	index *search.MetadataIndex
	blobs providers.BlobProvider

	mu sync.Mutex // serializes store+index mutations
}

// NewKnowledgeService creates the knowledge base service. blobs may be nil
// when no drawing storage is configured; drawings are then rejected.
func NewKnowledgeService(repo repositories.SampleRepository, index *search.MetadataIndex, blobs providers.BlobProvider) *KnowledgeService {
	return &KnowledgeService{
		repo:  repo,
		index: index,
		blobs: blobs,
	}
}

// RegisterSample validates, persists and indexes a new sample, returning its
// identifier. The drawing is optional.
func (s *KnowledgeService) RegisterSample(ctx context.Context, programCode string, drawing []byte, drawingMime string, meta entities.SampleMetadata) (string, error) {
	meta.Normalize()

	sample := &entities.Sample{
		ID:          uuid.New().String(),
		ProgramCode: programCode,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	if err := sample.Validate(); err != nil {
		return "", err
	}

	if len(drawing) > 0 {
		if s.blobs == nil {
			return "", apperrors.NewValidationError("drawing storage is not configured")
		}
		sample.DrawingBlobID = sample.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sample.DrawingBlobID != "" {
		if err := s.blobs.Put(ctx, sample.DrawingBlobID, drawing, drawingMime); err != nil {
			return "", err
		}
	}

	if err := s.repo.Create(ctx, sample); err != nil {
		if sample.DrawingBlobID != "" {
			// best-effort rollback of the orphaned drawing
			_ = s.blobs.Delete(ctx, sample.DrawingBlobID)
		}
		return "", err
	}

	s.index.Upsert(sample)

	observability.LoggerFromContext(ctx).Info().
		Str("sample_id", sample.ID).
		Str("material", sample.Metadata.Material).
		Str("machining_type", string(sample.Metadata.MachiningType)).
		Msg("sample registered")

	return sample.ID, nil
}

// GetSample retrieves one sample by identifier.
func (s *KnowledgeService) GetSample(ctx context.Context, id string) (*entities.Sample, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("sample id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// GetDrawing returns the drawing image attached to a sample.
func (s *KnowledgeService) GetDrawing(ctx context.Context, sampleID string) ([]byte, string, error) {
	sample, err := s.repo.GetByID(ctx, sampleID)
	if err != nil {
		return nil, "", err
	}
	if !sample.HasDrawing() || s.blobs == nil {
		return nil, "", apperrors.NewNotFoundError("sample has no drawing")
	}
	return s.blobs.Get(ctx, sample.DrawingBlobID)
}

// DeleteSample removes a sample from the store, the index and the blob
// store. Deleting an absent sample returns false without error.
func (s *KnowledgeService) DeleteSample(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, apperrors.NewValidationError("sample id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sample, err := s.repo.GetByID(ctx, id)
	if err != nil && !apperrors.IsNotFound(err) {
		return false, err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	s.index.Remove(id)

	if sample != nil && sample.HasDrawing() && s.blobs != nil {
		_ = s.blobs.Delete(ctx, sample.DrawingBlobID)
	}

	observability.LoggerFromContext(ctx).Info().Str("sample_id", id).Msg("sample deleted")
	return true, nil
}

// SearchSamples returns the samples matching a metadata filter, newest
// first. An empty filter returns the whole corpus.
func (s *KnowledgeService) SearchSamples(ctx context.Context, filter search.Filter) ([]*entities.Sample, error) {
	ids := s.index.Query(filter)
	if len(ids) == 0 {
		return []*entities.Sample{}, nil
	}

	samples, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].CreatedAt.Equal(samples[j].CreatedAt) {
			return samples[i].ID < samples[j].ID
		}
		return samples[i].CreatedAt.After(samples[j].CreatedAt)
	})

	return samples, nil
}

// RebuildIndex recomputes the index from a full store scan. This is the sole
// recovery path after a suspected index corruption.
func (s *KnowledgeService) RebuildIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	s.index.Rebuild(samples)

	observability.LoggerFromContext(ctx).Info().Int("samples", len(samples)).Msg("index rebuilt")
	return len(samples), nil
}
