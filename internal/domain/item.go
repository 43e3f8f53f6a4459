package domain

import "time"

// Item is one submission event pulled from the upstream stream. Fields
// are read-only once decoded; AgeVerified is the only mutable marker
// and is set by the dispatcher after the item's author passes the
// account-age gate, so later destinations in the same pass skip the
// recomputation.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Subreddit     string    `json:"subreddit"`
	Author        string    `json:"author"`
	AuthorCreated time.Time `json:"author_created"`
	URL           string    `json:"url"`
	Domain        string    `json:"domain"`
	Permalink     string    `json:"permalink"`
	NSFW          bool      `json:"over_18"`

	AgeVerified bool `json:"-"`
}

// ForwardFailure records a forward the platform rejected (quota,
// permission, malformed request). Conflicts are not failures.
type ForwardFailure struct {
	Item        Item
	Destination string
	Err         error
	At          time.Time
}
