package destination

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/imagesof/relay/internal/blacklist"
	"github.com/imagesof/relay/internal/platform"
)

// Spec describes one destination in configuration.
type Spec struct {
	Name string   `yaml:"name"`
	Rule RuleSpec `yaml:"rule"`
	// BlacklistPage is the wiki page (in the destination's own
	// collection) holding its blacklist. Empty means no
	// destination-level blacklist.
	BlacklistPage string `yaml:"blacklist_page,omitempty"`
}

// Registry is the ordered, read-only collection of destinations. Safe
// to share without synchronization after construction.
type Registry struct {
	destinations []*Destination
}

// NewRegistry compiles every spec and loads each destination's
// blacklist eagerly. A destination whose rule does not compile fails
// startup; a destination whose blacklist cannot be fetched is excluded
// with a logged warning rather than silently skipped at runtime.
func NewRegistry(ctx context.Context, specs []Spec, store platform.DocumentStore, log zerolog.Logger) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("registry: no destinations configured")
	}
	reg := &Registry{destinations: make([]*Destination, 0, len(specs))}
	for _, spec := range specs {
		rule, err := spec.Rule.Compile()
		if err != nil {
			return nil, fmt.Errorf("registry: destination %s: %w", spec.Name, err)
		}
		var blocked blacklist.Set
		if spec.BlacklistPage != "" {
			blocked, err = blacklist.Load(ctx, store, spec.Name, spec.BlacklistPage)
			if err != nil {
				log.Warn().Err(err).Str("destination", spec.Name).
					Msg("Excluding destination: blacklist load failed")
				continue
			}
		}
		reg.destinations = append(reg.destinations, New(spec.Name, rule, blocked))
		log.Info().Str("destination", spec.Name).Int("blacklist_entries", blocked.Len()).
			Msg("Destination registered")
	}
	if len(reg.destinations) == 0 {
		return nil, fmt.Errorf("registry: every configured destination failed to load")
	}
	return reg, nil
}

// Destinations returns the registry in configuration order.
func (r *Registry) Destinations() []*Destination {
	return r.destinations
}

func (r *Registry) Len() int { return len(r.destinations) }
