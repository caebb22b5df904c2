package providers

import (
	"context"
)

// BlobProvider stores drawing images addressed by opaque identifier.
// Put and Get are the whole contract; blobs are never listed or scanned.
type BlobProvider interface {
	// Put stores a blob under the given identifier
	Put(ctx context.Context, id string, data []byte, mimeType string) error

	// Get retrieves a blob and its MIME type by identifier
	Get(ctx context.Context, id string) ([]byte, string, error)

	// Delete removes a blob; deleting an absent blob is not an error
	Delete(ctx context.Context, id string) error
}
