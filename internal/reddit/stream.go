package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/platform"
)

const (
	listingLimit = 100
	// authorCacheSize bounds the author-creation-time cache. Authors
	// repeat heavily on a busy listing, so most age lookups hit it.
	authorCacheSize = 4096
)

// Open starts a fresh submission stream over the configured listing.
func (c *Client) Open(ctx context.Context) (platform.Stream, error) {
	// Prime the anchor so the stream starts at "now" instead of
	// replaying whatever the first page holds.
	s := &stream{client: c, authors: newAuthorCache(authorCacheSize)}
	if err := s.prime(ctx); err != nil {
		return nil, err
	}
	c.log.Info().Str("listing", c.cfg.Listing).Msg("Submission stream opened")
	return s, nil
}

type stream struct {
	client  *Client
	before  string
	buf     []*domain.Item
	authors *authorCache
	closed  bool
}

func (s *stream) Next(ctx context.Context) (*domain.Item, error) {
	for {
		if s.closed {
			return nil, platform.ErrEndOfStream
		}
		if len(s.buf) > 0 {
			item := s.buf[0]
			s.buf = s.buf[1:]
			return item, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.client.cfg.PollInterval):
		}
		if err := s.poll(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *stream) Close() {
	s.closed = true
}

func (s *stream) prime(ctx context.Context) error {
	listing, err := s.fetchListing(ctx, "")
	if err != nil {
		return err
	}
	if len(listing.Data.Children) > 0 {
		s.before = listing.Data.Children[0].Data.Name
	}
	return nil
}

// poll fetches everything newer than the anchor and buffers it
// oldest-first. An empty page leaves the anchor alone; Reddit trims
// the before-window itself when the anchor ages out of the listing.
func (s *stream) poll(ctx context.Context) error {
	listing, err := s.fetchListing(ctx, s.before)
	if err != nil {
		return err
	}
	children := listing.Data.Children
	if len(children) == 0 {
		return nil
	}
	s.before = children[0].Data.Name

	// Listings are newest-first; emit in arrival order.
	for i := len(children) - 1; i >= 0; i-- {
		item, err := s.toItem(ctx, children[i].Data)
		if err != nil {
			return err
		}
		if item != nil {
			s.buf = append(s.buf, item)
		}
	}
	return nil
}

func (s *stream) fetchListing(ctx context.Context, before string) (*submissionListing, error) {
	path := fmt.Sprintf("/r/%s/new.json?limit=%d", s.client.cfg.Listing, listingLimit)
	if before != "" {
		path += "&before=" + before
	}
	payload, err := s.client.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var listing submissionListing
	if err := json.Unmarshal(payload, &listing); err != nil {
		return nil, &platform.TransportError{
			Kind: platform.ConnectionFailed,
			Err:  fmt.Errorf("decode listing: %w", err),
		}
	}
	return &listing, nil
}

func (s *stream) toItem(ctx context.Context, post submissionData) (*domain.Item, error) {
	if post.Author == "" || post.Author == "[deleted]" {
		return nil, nil
	}
	created, err := s.authors.created(ctx, s.client, post.Author)
	if err != nil {
		if platform.AsTransport(err) != nil || ctx.Err() != nil {
			return nil, err
		}
		// Suspended or vanished account: nothing to forward.
		s.client.log.Debug().Err(err).Str("author", post.Author).Msg("Author lookup failed, dropping item")
		return nil, nil
	}
	return &domain.Item{
		ID:            post.ID,
		Title:         post.Title,
		Subreddit:     post.Subreddit,
		Author:        post.Author,
		AuthorCreated: created,
		URL:           post.URL,
		Domain:        post.Domain,
		Permalink:     "https://www.reddit.com" + post.Permalink,
		NSFW:          post.Over18,
	}, nil
}

type submissionListing struct {
	Data struct {
		Children []struct {
			Data submissionData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type submissionData struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Title     string  `json:"title"`
	Subreddit string  `json:"subreddit"`
	Author    string  `json:"author"`
	URL       string  `json:"url"`
	Domain    string  `json:"domain"`
	Permalink string  `json:"permalink"`
	Over18    bool    `json:"over_18"`
	Created   float64 `json:"created_utc"`
}

// authorCache memoizes account creation times. Listings do not carry
// them, so each new author costs one about.json request.
type authorCache struct {
	mu       sync.Mutex
	capacity int
	times    map[string]time.Time
	order    []string
}

func newAuthorCache(capacity int) *authorCache {
	return &authorCache{
		capacity: capacity,
		times:    make(map[string]time.Time, capacity),
	}
}

func (a *authorCache) created(ctx context.Context, c *Client, author string) (time.Time, error) {
	a.mu.Lock()
	if t, ok := a.times[author]; ok {
		a.mu.Unlock()
		return t, nil
	}
	a.mu.Unlock()

	payload, err := c.get(ctx, "/user/"+author+"/about.json")
	if err != nil {
		return time.Time{}, err
	}
	var about struct {
		Data struct {
			Created float64 `json:"created_utc"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &about); err != nil {
		return time.Time{}, fmt.Errorf("decode author %s: %w", author, err)
	}
	t := time.Unix(int64(about.Data.Created), 0).UTC()

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.times[author]; !ok {
		if len(a.order) >= a.capacity {
			delete(a.times, a.order[0])
			a.order = a.order[1:]
		}
		a.times[author] = t
		a.order = append(a.order, author)
	}
	return t, nil
}
