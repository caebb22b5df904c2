package blob

import (
	"context"
	"fmt"

	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	redisclient "github.com/kzhara/lathemind/backend/internal/infrastructure/clients/redis"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisAdapter implements BlobProvider on Redis hashes. Drawing images are
// small (a few MB at most) so a Redis value is an adequate blob home.
type RedisAdapter struct {
	client *redisclient.Client
}

// NewRedisAdapter creates a new Redis blob adapter
func NewRedisAdapter(client *redisclient.Client) providers.BlobProvider {
	return &RedisAdapter{client: client}
}

func blobKey(id string) string {
	return "drawing:" + id
}

// Put stores a blob with its MIME type
func (a *RedisAdapter) Put(ctx context.Context, id string, data []byte, mimeType string) error {
	if id == "" {
		return apperrors.NewValidationError("blob id is required")
	}
	err := a.client.Client().HSet(ctx, blobKey(id), map[string]interface{}{
		"data": data,
		"mime": mimeType,
	}).Err()
	if err != nil {
		return apperrors.NewInternalError("failed to store blob", err)
	}
	return nil
}

// Get retrieves a blob and its MIME type
func (a *RedisAdapter) Get(ctx context.Context, id string) ([]byte, string, error) {
	values, err := a.client.Client().HGetAll(ctx, blobKey(id)).Result()
	if err != nil && err != redis.Nil {
		return nil, "", apperrors.NewInternalError("failed to read blob", err)
	}
	if len(values) == 0 {
		return nil, "", apperrors.NewNotFoundError(fmt.Sprintf("blob %s not found", id))
	}
	return []byte(values["data"]), values["mime"], nil
}

// Delete removes a blob; absent blobs are not an error
func (a *RedisAdapter) Delete(ctx context.Context, id string) error {
	if err := a.client.Client().Del(ctx, blobKey(id)).Err(); err != nil {
		return apperrors.NewInternalError("failed to delete blob", err)
	}
	return nil
}
