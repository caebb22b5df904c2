package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
)

type memoryBlob struct {
	data     []byte
	mimeType string
}

// MemoryAdapter is an in-process BlobProvider used when Redis is not
// configured, and in tests.
type MemoryAdapter struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

// NewMemoryAdapter creates a new in-memory blob adapter
func NewMemoryAdapter() providers.BlobProvider {
	return &MemoryAdapter{blobs: make(map[string]memoryBlob)}
}

// Put stores a blob with its MIME type
func (a *MemoryAdapter) Put(ctx context.Context, id string, data []byte, mimeType string) error {
	if id == "" {
		return apperrors.NewValidationError("blob id is required")
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[id] = memoryBlob{data: cp, mimeType: mimeType}
	return nil
}

// Get retrieves a blob and its MIME type
func (a *MemoryAdapter) Get(ctx context.Context, id string) ([]byte, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.blobs[id]
	if !ok {
		return nil, "", apperrors.NewNotFoundError(fmt.Sprintf("blob %s not found", id))
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, b.mimeType, nil
}

// Delete removes a blob; absent blobs are not an error
func (a *MemoryAdapter) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blobs, id)
	return nil
}
