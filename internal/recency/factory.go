package recency

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// NewStore builds a recency store from configuration. "memory" is the
// default and the contract reference; "redis" shares history across
// processes; "noop" disables dedup entirely.
func NewStore(storeType, redisURL string, capacity int, ttl time.Duration) (Store, error) {
	switch storeType {
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("recency: redis store requires a redis URL")
		}
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		log.Info().Str("url", redisURL).Dur("ttl", ttl).Msg("Recency store: redis")
		return NewRedisStore(newGoRedisClient(redisURL), "recency:", ttl), nil
	case "", "memory":
		if capacity <= 0 {
			capacity = DefaultCapacity
		}
		log.Info().Int("capacity", capacity).Msg("Recency store: in-memory FIFO")
		return NewFIFOStore(capacity), nil
	case "noop":
		log.Warn().Msg("Recency store: noop (duplicate suppression disabled)")
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("recency: unknown store type %q", storeType)
	}
}
