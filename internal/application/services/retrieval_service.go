package services

import (
	"context"
	"sort"
	"time"

	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/repositories"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
)

// Scoring weights: an exact machining-type match dominates, material comes
// second, tag overlap and recency refine the order within those groups.
const (
	weightTypeMatch     = 10.0
	weightMaterialMatch = 5.0
	weightTagOverlap    = 4.0
	recencyHalfLifeDays = 180.0
)

// ScoredSample is one ranked retrieval candidate.
type ScoredSample struct {
	Sample     *entities.Sample
	Score      float64
	TagOverlap float64
}

// RetrievalService selects and ranks the exemplars most relevant to a
// generation request.
type RetrievalService struct {
	repo  repositories.SampleRepository
	index *search.MetadataIndex

	// now is injectable so ranking stays reproducible in tests.
	now func() time.Time
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(repo repositories.SampleRepository, index *search.MetadataIndex) *RetrievalService {
	return &RetrievalService{
		repo:  repo,
		index: index,
		now:   time.Now,
	}
}

// Retrieve returns at most k candidates ordered by descending relevance.
// An empty corpus yields an empty slice, never an error.
func (s *RetrievalService) Retrieve(ctx context.Context, req *entities.GenerationRequest, k int) ([]ScoredSample, error) {
	if k <= 0 {
		return nil, nil
	}

	start := time.Now()
	ids := s.candidates(req)
	if len(ids) == 0 {
		return nil, nil
	}

	samples, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	material := req.Conditions.NormalizedMaterial()
	machiningType := req.MachiningType()
	tags := req.Tags()
	now := s.now()

	scored := make([]ScoredSample, 0, len(samples))
	for _, sample := range samples {
		score, overlap := s.score(sample, material, machiningType, tags, now)
		scored = append(scored, ScoredSample{Sample: sample, Score: score, TagOverlap: overlap})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TagOverlap != b.TagOverlap {
			return a.TagOverlap > b.TagOverlap
		}
		if !a.Sample.CreatedAt.Equal(b.Sample.CreatedAt) {
			return a.Sample.CreatedAt.After(b.Sample.CreatedAt)
		}
		return a.Sample.ID < b.Sample.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	observability.LoggerFromContext(ctx).Debug().
		Int("candidates", len(samples)).
		Int("selected", len(scored)).
		Dur("duration", time.Since(start)).
		Msg("retrieval complete")

	return scored, nil
}

// candidates walks the filter waterfall: machining type first, material
// only, then the unfiltered corpus. A stricter filter that matches nothing
// never hides broader matches.
func (s *RetrievalService) candidates(req *entities.GenerationRequest) []string {
	machiningType := req.MachiningType()
	material := req.Conditions.NormalizedMaterial()

	if machiningType != "" {
		if ids := s.index.Query(search.Filter{MachiningType: machiningType}); len(ids) > 0 {
			return ids
		}
	}
	if material != "" {
		if ids := s.index.Query(search.Filter{Material: material}); len(ids) > 0 {
			return ids
		}
	}
	return s.index.Query(search.Filter{})
}

func (s *RetrievalService) score(sample *entities.Sample, material string, machiningType entities.MachiningType, tags []string, now time.Time) (float64, float64) {
	score := 0.0

	if machiningType != "" && sample.Metadata.MachiningType == machiningType {
		score += weightTypeMatch
	}
	if material != "" && sample.Metadata.Material == material {
		score += weightMaterialMatch
	}

	overlap := tagOverlapRatio(sample.Metadata.Tags, tags)
	score += overlap * weightTagOverlap

	score += recencyBonus(sample.CreatedAt, now)

	return score, overlap
}

// tagOverlapRatio is |sample ∩ request| / |request|; zero when the request
// carries no tags.
func tagOverlapRatio(sampleTags, requestTags []string) float64 {
	if len(requestTags) == 0 {
		return 0
	}
	set := make(map[string]bool, len(sampleTags))
	for _, t := range sampleTags {
		set[t] = true
	}
	matched := 0
	for _, t := range requestTags {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(requestTags))
}

// recencyBonus favors newer samples so curated recent corrections win ties;
// it is small enough never to outrank a metadata match.
func recencyBonus(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1.0 / (1.0 + ageDays/recencyHalfLifeDays)
}
