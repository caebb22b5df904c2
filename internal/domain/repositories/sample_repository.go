package repositories

import (
	"context"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

// SampleRepository defines the interface for durable sample storage.
// Samples are immutable; there is no update operation.
type SampleRepository interface {
	// Create persists a new sample
	Create(ctx context.Context, sample *entities.Sample) error

	// GetByID retrieves a sample by ID
	GetByID(ctx context.Context, id string) (*entities.Sample, error)

	// GetByIDs retrieves multiple samples by their IDs
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Sample, error)

	// Delete removes a sample. It returns false, without error, when the
	// sample was already absent so deletion stays idempotent.
	Delete(ctx context.Context, id string) (bool, error)

	// ListAll returns every sample ordered by creation time ascending.
	// This full scan is the recovery path the index is rebuilt from.
	ListAll(ctx context.Context) ([]*entities.Sample, error)
}
