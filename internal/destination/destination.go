package destination

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/imagesof/relay/internal/blacklist"
	"github.com/imagesof/relay/internal/domain"
)

// Rule is a destination's acceptance predicate over an item. Rules are
// compiled once from configuration and are pure.
type Rule func(*domain.Item) bool

// RuleSpec is the configured, tagged form of a rule.
//
// Kinds:
//
//	keyword — any configured keyword appears in the item title
//	regex   — the pattern matches the item title
//	domain  — the item's source domain is one of the configured domains
//	any     — accept everything that survived the global filter
type RuleSpec struct {
	Kind     string   `yaml:"kind"`
	Keywords []string `yaml:"keywords,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`
	Domains  []string `yaml:"domains,omitempty"`
}

// Compile turns a RuleSpec into an executable predicate. Malformed
// specs fail here, at startup.
func (s RuleSpec) Compile() (Rule, error) {
	switch s.Kind {
	case "keyword":
		if len(s.Keywords) == 0 {
			return nil, fmt.Errorf("keyword rule with no keywords")
		}
		keywords := make([]string, len(s.Keywords))
		for i, k := range s.Keywords {
			keywords[i] = strings.ToLower(k)
		}
		return func(item *domain.Item) bool {
			title := strings.ToLower(item.Title)
			for _, k := range keywords {
				if strings.Contains(title, k) {
					return true
				}
			}
			return false
		}, nil
	case "regex":
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("regex rule: %w", err)
		}
		return func(item *domain.Item) bool {
			return re.MatchString(item.Title)
		}, nil
	case "domain":
		if len(s.Domains) == 0 {
			return nil, fmt.Errorf("domain rule with no domains")
		}
		domains := make(map[string]struct{}, len(s.Domains))
		for _, d := range s.Domains {
			domains[strings.ToLower(d)] = struct{}{}
		}
		return func(item *domain.Item) bool {
			_, ok := domains[strings.ToLower(item.Domain)]
			return ok
		}, nil
	case "any":
		return func(*domain.Item) bool { return true }, nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", s.Kind)
	}
}

// Destination is one downstream subreddit eligible to receive
// forwarded items. Constructed once at startup, immutable thereafter.
type Destination struct {
	Name    string
	rule    Rule
	blocked blacklist.Set
}

func New(name string, rule Rule, blocked blacklist.Set) *Destination {
	if blocked == nil {
		blocked = blacklist.Set{}
	}
	return &Destination{Name: name, rule: rule, blocked: blocked}
}

// Accepts runs the destination's own predicate.
func (d *Destination) Accepts(item *domain.Item) bool {
	return d.rule(item)
}

// UserBlacklisted consults the destination's own blacklist for the
// item's author.
func (d *Destination) UserBlacklisted(item *domain.Item) bool {
	return d.blocked.Contains(item.Author)
}

// SourceBlacklisted consults the destination's own blacklist for the
// item's source subreddit.
func (d *Destination) SourceBlacklisted(item *domain.Item) bool {
	return d.blocked.Contains(item.Subreddit)
}
