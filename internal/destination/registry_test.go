package destination

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/imagesof/relay/internal/docstore"
)

func TestNewRegistry_PreservesConfigurationOrder(t *testing.T) {
	store := docstore.NewInMemoryStore()
	store.Put("ImagesOfOregon", "blacklist", "/u/pest\n")
	store.Put("ImagesOfTexas", "blacklist", "")

	specs := []Spec{
		{Name: "ImagesOfOregon", Rule: RuleSpec{Kind: "any"}, BlacklistPage: "blacklist"},
		{Name: "ImagesOfTexas", Rule: RuleSpec{Kind: "any"}, BlacklistPage: "blacklist"},
	}
	reg, err := NewRegistry(context.Background(), specs, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dests := reg.Destinations()
	if len(dests) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(dests))
	}
	if dests[0].Name != "ImagesOfOregon" || dests[1].Name != "ImagesOfTexas" {
		t.Fatalf("expected configuration order to be preserved, got %s, %s",
			dests[0].Name, dests[1].Name)
	}
}

func TestNewRegistry_ExcludesDestinationWithUnloadableBlacklist(t *testing.T) {
	store := docstore.NewInMemoryStore()
	store.Put("ImagesOfTexas", "blacklist", "")

	specs := []Spec{
		{Name: "ImagesOfOregon", Rule: RuleSpec{Kind: "any"}, BlacklistPage: "blacklist"},
		{Name: "ImagesOfTexas", Rule: RuleSpec{Kind: "any"}, BlacklistPage: "blacklist"},
	}
	reg, err := NewRegistry(context.Background(), specs, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected the destination with the missing page to be excluded, got %d", reg.Len())
	}
	if reg.Destinations()[0].Name != "ImagesOfTexas" {
		t.Fatalf("expected only ImagesOfTexas to survive, got %s", reg.Destinations()[0].Name)
	}
}

func TestNewRegistry_NoBlacklistPageSkipsLoad(t *testing.T) {
	store := docstore.NewInMemoryStore()
	specs := []Spec{{Name: "ImagesOfOregon", Rule: RuleSpec{Kind: "any"}}}
	reg, err := NewRegistry(context.Background(), specs, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 destination, got %d", reg.Len())
	}
}

func TestNewRegistry_BadRuleIsFatal(t *testing.T) {
	store := docstore.NewInMemoryStore()
	specs := []Spec{{Name: "Broken", Rule: RuleSpec{Kind: "regex", Pattern: "("}}}
	if _, err := NewRegistry(context.Background(), specs, store, zerolog.Nop()); err == nil {
		t.Fatal("expected a rule compilation failure to be fatal")
	}
}

func TestNewRegistry_AllDestinationsFailedIsFatal(t *testing.T) {
	store := docstore.NewInMemoryStore()
	specs := []Spec{{Name: "Only", Rule: RuleSpec{Kind: "any"}, BlacklistPage: "missing"}}
	if _, err := NewRegistry(context.Background(), specs, store, zerolog.Nop()); err == nil {
		t.Fatal("expected an empty surviving registry to be fatal")
	}
}

func TestNewRegistry_EmptySpecListIsFatal(t *testing.T) {
	if _, err := NewRegistry(context.Background(), nil, docstore.NewInMemoryStore(), zerolog.Nop()); err == nil {
		t.Fatal("expected an empty destination list to be fatal")
	}
}
