package reddit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imagesof/relay/internal/platform"
	"github.com/imagesof/relay/internal/telemetry"
)

// Wiki exposes subreddit wiki pages as a DocumentStore. Blacklists
// live on the master subreddit's wiki and on each destination's own.
type Wiki struct {
	client *Client
}

func NewWiki(client *Client) *Wiki {
	return &Wiki{client: client}
}

func (w *Wiki) Fetch(ctx context.Context, collection, page string) (string, error) {
	ctx, span := telemetry.StartFetchSpan(ctx, collection, page)
	defer span.End()

	payload, err := w.client.get(ctx, fmt.Sprintf("/r/%s/wiki/%s.json", collection, page))
	if err != nil {
		return "", fmt.Errorf("%w: wiki %s/%s: %v", platform.ErrSourceUnavailable, collection, page, err)
	}
	var doc struct {
		Data struct {
			ContentMD string `json:"content_md"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("%w: decode wiki %s/%s: %v", platform.ErrSourceUnavailable, collection, page, err)
	}
	return doc.Data.ContentMD, nil
}

var _ platform.DocumentStore = (*Wiki)(nil)
