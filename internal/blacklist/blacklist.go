package blacklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/imagesof/relay/internal/platform"
)

// prefixLen is the fixed-width marker ("/u/", "/r/") each wiki
// blacklist line carries before the identifier.
const prefixLen = 3

// Set is a load-time-normalized membership set. Entries are lowercased
// on load so lookups are case-insensitive by construction. Immutable
// after Parse.
type Set map[string]struct{}

// Parse builds a Set from a blacklist document: one entry per line,
// blank lines skipped, the fixed 3-character prefix stripped, the rest
// trimmed and lowercased.
func Parse(text string) Set {
	set := make(Set)
	for _, line := range strings.Split(text, "\n") {
		entry := strings.ToLower(strings.TrimSpace(line))
		if entry == "" {
			continue
		}
		if len(entry) > prefixLen {
			entry = entry[prefixLen:]
		} else {
			continue
		}
		set[entry] = struct{}{}
	}
	return set
}

// Contains reports membership, case-insensitively.
func (s Set) Contains(name string) bool {
	_, ok := s[strings.ToLower(name)]
	return ok
}

func (s Set) Len() int { return len(s) }

// Load fetches and parses a blacklist page, retrying transient fetch
// failures a few times before giving up with the underlying error.
func Load(ctx context.Context, store platform.DocumentStore, collection, page string) (Set, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	text, err := backoff.Retry(ctx, func() (string, error) {
		return store.Fetch(ctx, collection, page)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		return nil, fmt.Errorf("load blacklist %s/%s: %w", collection, page, err)
	}
	return Parse(text), nil
}
