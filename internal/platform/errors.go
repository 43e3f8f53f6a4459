package platform

import (
	"errors"
	"fmt"
)

// ErrEndOfStream is returned by Stream.Next when the upstream listing
// ends without a transport failure. The dispatcher reconnects
// immediately.
var ErrEndOfStream = errors.New("end of stream")

// ErrSourceUnavailable marks a document store fetch that could not be
// served. Fatal during startup blacklist loading, warning-and-exclude
// during destination construction.
var ErrSourceUnavailable = errors.New("document source unavailable")

// TransportKind distinguishes the two recovery paths after a transport
// failure: ServiceUnavailable gets the fixed backoff sleep,
// ConnectionFailed reconnects immediately.
type TransportKind int

const (
	ServiceUnavailable TransportKind = iota
	ConnectionFailed
)

func (k TransportKind) String() string {
	if k == ServiceUnavailable {
		return "service_unavailable"
	}
	return "connection_failed"
}

// TransportError wraps any failure of the wire itself, on the read or
// the write path. The dispatcher treats both uniformly: tear down the
// stream and reconnect.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PlatformError is a per-item rejection reported by the platform:
// quota, permission, malformed request. Logged, never retried.
type PlatformError struct {
	Code    string
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform rejected request: %s: %s", e.Code, e.Message)
}

// ConflictError reports that the destination already has this item.
// Expected outcome, not a failure: it is the secondary dedup net
// behind the in-memory recency cache.
type ConflictError struct {
	Destination string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("already submitted to %s", e.Destination)
}

// AsTransport returns the TransportError wrapped anywhere in err's
// chain, or nil.
func AsTransport(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
