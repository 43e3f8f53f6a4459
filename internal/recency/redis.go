package recency

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RedisClient is the slice of redis the store needs. SetNX is the
// atomic check-and-record primitive: true means the key was absent and
// is now recorded.
type RedisClient interface {
	SetNX(key string, ttl time.Duration) (bool, error)
}

// RedisStore shares recency history across processes. Eviction is
// TTL-based rather than FIFO, so the window is time-bounded instead of
// count-bounded; on redis errors it fails open and allows the forward,
// leaving the platform's own conflict detection as the net.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) ShouldForward(key string) bool {
	if key == "" {
		return false
	}
	recorded, err := r.client.SetNX(r.prefix+key, r.ttl)
	if err != nil {
		log.Warn().Err(err).Msg("Recency redis SETNX failed, allowing forward")
		return true
	}
	return recorded
}

// MockRedisClient is an in-memory RedisClient for tests.
type MockRedisClient struct {
	mu      sync.Mutex
	store   map[string]time.Duration
	errMsg  string
	lastTTL time.Duration
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{store: make(map[string]time.Duration)}
}

func (m *MockRedisClient) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = msg
}

func (m *MockRedisClient) KeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

func (m *MockRedisClient) HasKey(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store[key]
	return ok
}

func (m *MockRedisClient) LastTTL() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTTL
}

func (m *MockRedisClient) SetNX(key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errMsg != "" {
		return false, fmt.Errorf("%s", m.errMsg)
	}
	if _, exists := m.store[key]; exists {
		return false, nil
	}
	m.store[key] = ttl
	m.lastTTL = ttl
	return true, nil
}
