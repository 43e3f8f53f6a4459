package platform

import (
	"context"

	"github.com/imagesof/relay/internal/domain"
)

// StreamSource opens a fresh stream of submission events. The
// dispatcher re-opens it after every stream failure; Open must be safe
// to call repeatedly.
type StreamSource interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields items one at a time. Next blocks until an item is
// available, the stream ends (ErrEndOfStream), or a transport failure
// occurs (*TransportError).
type Stream interface {
	Next(ctx context.Context) (*domain.Item, error)
	Close()
}

// DocumentStore fetches text documents (blacklist pages) from a remote
// collection. A fetch that reaches the store but finds nothing, or
// cannot reach the store at all, returns an error wrapping
// ErrSourceUnavailable.
type DocumentStore interface {
	Fetch(ctx context.Context, collection, page string) (string, error)
}

// Handle identifies a submitted post so a follow-up annotation can be
// attached to it. Opaque to the dispatcher.
type Handle string

// Publisher submits items into destinations. Submit and Annotate fail
// with *ConflictError, *PlatformError, or *TransportError.
type Publisher interface {
	Submit(ctx context.Context, destination, title, url string) (Handle, error)
	Annotate(ctx context.Context, handle Handle, text string) error
}
