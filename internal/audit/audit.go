package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/imagesof/relay/internal/domain"
)

// Sink persists one rejected-forward record.
type Sink interface {
	Send(ctx context.Context, failure domain.ForwardFailure) error
}

// SinkErrorObserver counts sink write failures.
type SinkErrorObserver interface {
	RecordAuditSinkError()
}

type noopSinkObserver struct{}

func (noopSinkObserver) RecordAuditSinkError() {}

// Handler drains rejected forwards off the dispatcher's audit channel
// and hands them to the sink. Best effort: a sink failure is logged
// and counted, never retried.
type Handler struct {
	source   <-chan domain.ForwardFailure
	sink     Sink
	observer SinkErrorObserver
	log      zerolog.Logger
}

type Option func(*Handler)

func WithObserver(obs SinkErrorObserver) Option {
	return func(h *Handler) {
		h.observer = obs
	}
}

func NewHandler(source <-chan domain.ForwardFailure, sink Sink, log zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		source:   source,
		sink:     sink,
		observer: noopSinkObserver{},
		log:      log,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case failure, ok := <-h.source:
			if !ok {
				return
			}
			if err := h.sink.Send(ctx, failure); err != nil {
				h.log.Error().Err(err).
					Str("destination", failure.Destination).
					Str("item_url", failure.Item.URL).
					Msg("Audit sink write failed")
				h.observer.RecordAuditSinkError()
			}
		}
	}
}

// LogSink records failures to the log only.
type LogSink struct {
	Log zerolog.Logger
}

func (l *LogSink) Send(_ context.Context, failure domain.ForwardFailure) error {
	l.Log.Warn().
		Str("destination", failure.Destination).
		Str("item_id", failure.Item.ID).
		Str("item_url", failure.Item.URL).
		AnErr("cause", failure.Err).
		Msg("Forward rejected by platform")
	return nil
}
