package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/imagesof/relay/internal/platform"
)

// InMemoryStore serves documents from a map. Tests and local runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]string)}
}

func (s *InMemoryStore) Put(collection, page, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection+"/"+page] = text
}

func (s *InMemoryStore) Fetch(_ context.Context, collection, page string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.docs[collection+"/"+page]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s not found", platform.ErrSourceUnavailable, collection, page)
	}
	return text, nil
}
