package docstore

import (
	"context"
	"fmt"

	"github.com/imagesof/relay/internal/platform"
)

// ObjectStorageClient is the slice of S3 the store needs.
type ObjectStorageClient interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3Store reads blacklist documents mirrored to an object bucket, one
// object per page at <collection>/<page>. Used when the relay should
// boot without reaching the platform's wiki, or for offline runs.
type S3Store struct {
	client ObjectStorageClient
	bucket string
}

func NewS3Store(client ObjectStorageClient, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Fetch(ctx context.Context, collection, page string) (string, error) {
	data, err := s.client.GetObject(ctx, s.bucket, collection+"/"+page)
	if err != nil {
		return "", fmt.Errorf("%w: s3 get %s/%s/%s: %v",
			platform.ErrSourceUnavailable, s.bucket, collection, page, err)
	}
	return string(data), nil
}

var (
	_ platform.DocumentStore = (*S3Store)(nil)
	_ platform.DocumentStore = (*InMemoryStore)(nil)
)
