package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/repositories"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

// SampleAdapter is an in-memory SampleRepository used by tests and by
// standalone deployments that run without PostgreSQL.
type SampleAdapter struct {
	mu      sync.RWMutex
	samples map[string]*entities.Sample
}

// NewSampleAdapter creates an empty in-memory sample store.
func NewSampleAdapter() *SampleAdapter {
	return &SampleAdapter{samples: make(map[string]*entities.Sample)}
}

var _ repositories.SampleRepository = (*SampleAdapter)(nil)

// Create persists a new sample
func (a *SampleAdapter) Create(ctx context.Context, sample *entities.Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.samples[sample.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("sample %s already exists", sample.ID))
	}

	copied := *sample
	a.samples[sample.ID] = &copied
	return nil
}

// GetByID retrieves a sample by ID
func (a *SampleAdapter) GetByID(ctx context.Context, id string) (*entities.Sample, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sample, ok := a.samples[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sample %s not found", id))
	}

	copied := *sample
	return &copied, nil
}

// GetByIDs retrieves multiple samples by their IDs, skipping absent ones.
func (a *SampleAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Sample, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	samples := make([]*entities.Sample, 0, len(ids))
	for _, id := range ids {
		if sample, ok := a.samples[id]; ok {
			copied := *sample
			samples = append(samples, &copied)
		}
	}
	return samples, nil
}

// Delete removes a sample, reporting whether it was present.
func (a *SampleAdapter) Delete(ctx context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.samples[id]; !ok {
		return false, nil
	}
	delete(a.samples, id)
	return true, nil
}

// ListAll returns every sample ordered by creation time ascending.
func (a *SampleAdapter) ListAll(ctx context.Context) ([]*entities.Sample, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	samples := make([]*entities.Sample, 0, len(a.samples))
	for _, sample := range a.samples {
		copied := *sample
		samples = append(samples, &copied)
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].CreatedAt.Equal(samples[j].CreatedAt) {
			return samples[i].ID < samples[j].ID
		}
		return samples[i].CreatedAt.Before(samples[j].CreatedAt)
	})

	return samples, nil
}
