package docstore

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/imagesof/relay/internal/platform"
)

// FromConfig builds the blacklist document store. "wiki" (the
// platform's own wiki, supplied by the caller since it shares the
// platform HTTP client), "s3" for a bucket mirror, "memory" for tests.
func FromConfig(storeType, bucket, region string, wiki platform.DocumentStore) (platform.DocumentStore, error) {
	switch storeType {
	case "", "wiki":
		if wiki == nil {
			return nil, fmt.Errorf("docstore: wiki store requested but no platform client available")
		}
		log.Info().Msg("Document store: platform wiki")
		return wiki, nil
	case "s3":
		if bucket == "" {
			return nil, fmt.Errorf("docstore: s3 requires a non-empty bucket name")
		}
		client, err := newAWSS3Client(region)
		if err != nil {
			return nil, fmt.Errorf("docstore: create s3 client: %w", err)
		}
		log.Info().Str("bucket", bucket).Str("region", region).Msg("Document store: S3 mirror")
		return NewS3Store(client, bucket), nil
	case "memory":
		log.Warn().Msg("Document store: in-memory (blacklists will be empty)")
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("docstore: unknown store type %q", storeType)
	}
}
