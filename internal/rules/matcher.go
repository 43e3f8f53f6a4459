package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/imagesof/relay/internal/domain"
)

// Matcher holds the two compiled allow-rules: an anchored
// case-insensitive alternation over recognized source domains, and a
// suffix alternation over recognized file extensions. Compiled once at
// startup; matching never fails per item.
type Matcher struct {
	domainRe *regexp.Regexp
	extRe    *regexp.Regexp
}

// NewMatcher compiles the configured domain and extension lists. A
// malformed entry is a startup failure, not a per-item one.
func NewMatcher(domains, extensions []string) (*Matcher, error) {
	if len(domains) == 0 && len(extensions) == 0 {
		return nil, fmt.Errorf("rules: no domains and no extensions configured")
	}
	domainRe, err := regexp.Compile(`(?i)^(` + strings.Join(quoteAll(domains), "|") + `)$`)
	if err != nil {
		return nil, fmt.Errorf("rules: compile domain pattern: %w", err)
	}
	extRe, err := regexp.Compile(`(?i)(` + strings.Join(quoteAll(extensions), "|") + `)$`)
	if err != nil {
		return nil, fmt.Errorf("rules: compile extension pattern: %w", err)
	}
	return &Matcher{domainRe: domainRe, extRe: extRe}, nil
}

// MatchesDomain reports whether the item's source domain is, in its
// entirety, one of the recognized domains.
func (m *Matcher) MatchesDomain(item *domain.Item) bool {
	return m.domainRe.MatchString(item.Domain)
}

// MatchesExtension reports whether the item's URL ends in one of the
// recognized extensions.
func (m *Matcher) MatchesExtension(item *domain.Item) bool {
	return m.extRe.MatchString(item.URL)
}

func quoteAll(entries []string) []string {
	quoted := make([]string, len(entries))
	for i, e := range entries {
		quoted[i] = regexp.QuoteMeta(e)
	}
	return quoted
}
