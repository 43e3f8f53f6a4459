package recency

import "sync"

// DefaultCapacity bounds the in-memory history when configuration
// leaves it unset.
const DefaultCapacity = 50

// Store suppresses duplicate forwards of the same (item URL,
// destination) pair. ShouldForward is a single atomic check-and-record:
// the first caller for a key gets true and the key is recorded; later
// callers get false until the key ages out. There is deliberately no
// separate Contains, so two concurrent callers can never both observe
// "not present" for one pair.
type Store interface {
	ShouldForward(key string) bool
}

// Key builds the recency key for an item URL and a destination name.
func Key(url, destination string) string {
	return url + "\x00" + destination
}

// FIFOStore keeps at most capacity keys in arrival order, evicting the
// oldest on insert when full. A re-checked key keeps its original
// position: it ages out at its original insertion time, not its
// re-check time. Absence of a key only means "not forwarded recently";
// eviction loses history on purpose.
type FIFOStore struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
}

func NewFIFOStore(capacity int) *FIFOStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFOStore{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

func (s *FIFOStore) ShouldForward(key string) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.keys[key]; seen {
		return false
	}
	if len(s.order) >= s.capacity {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, evicted)
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// Len reports the number of tracked pairs.
func (s *FIFOStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// NoopStore forwards everything. Dry runs only.
type NoopStore struct{}

func (NoopStore) ShouldForward(string) bool { return true }
