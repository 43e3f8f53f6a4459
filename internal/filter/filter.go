package filter

import (
	"github.com/imagesof/relay/internal/blacklist"
	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/rules"
)

// Rejection reasons, used as metric labels.
const (
	ReasonNSFW          = "nsfw"
	ReasonUserBlocked   = "user_blacklisted"
	ReasonSourceBlocked = "subreddit_blacklisted"
	ReasonNoMatch       = "no_rule_match"
)

// Global is the admission filter every item must pass before any
// destination is considered. All state is loaded at startup and
// read-only afterwards.
type Global struct {
	nsfwOK  bool
	users   blacklist.Set
	subs    blacklist.Set
	matcher *rules.Matcher
}

func NewGlobal(nsfwOK bool, users, subs blacklist.Set, matcher *rules.Matcher) *Global {
	return &Global{nsfwOK: nsfwOK, users: users, subs: subs, matcher: matcher}
}

// Allow runs the global predicates in order, short-circuiting on the
// first failure. The returned reason is empty when the item is
// admitted. An item qualifies when either its domain or its URL
// extension matches; either signal alone is sufficient.
func (g *Global) Allow(item *domain.Item) (bool, string) {
	if item.NSFW && !g.nsfwOK {
		return false, ReasonNSFW
	}
	if g.users.Contains(item.Author) {
		return false, ReasonUserBlocked
	}
	if g.subs.Contains(item.Subreddit) {
		return false, ReasonSourceBlocked
	}
	if g.matcher.MatchesDomain(item) {
		return true, ""
	}
	if g.matcher.MatchesExtension(item) {
		return true, ""
	}
	return false, ReasonNoMatch
}
