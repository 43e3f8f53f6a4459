package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/imagesof/relay/internal/destination"
	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/filter"
	"github.com/imagesof/relay/internal/metrics"
	"github.com/imagesof/relay/internal/platform"
	"github.com/imagesof/relay/internal/recency"
	"github.com/imagesof/relay/internal/telemetry"
)

// State of the stream supervision loop.
type State int

const (
	Connecting State = iota
	Streaming
	Backoff
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	default:
		return "backoff"
	}
}

// minAccountAgeDays is the author account age, in whole days, an item
// must exceed before it may be forwarded anywhere.
const minAccountAgeDays = 2

// DefaultBackoff is the sleep before reconnecting after the platform
// reports itself unavailable.
const DefaultBackoff = 3 * time.Minute

type Config struct {
	// Backoff is the fixed sleep applied in the Backoff state.
	Backoff time.Duration
	// DryRun runs the full pipeline, recency recording included, but
	// performs no submit or annotate calls.
	DryRun bool
}

// Dispatcher owns the supervisory loop: it consumes the submission
// stream, runs the per-item pipeline against every destination, and
// reconnects on stream failure. It is the sole owner of the recency
// store; all other collaborators are read-only after construction.
type Dispatcher struct {
	cfg      Config
	source   platform.StreamSource
	pub      platform.Publisher
	global   *filter.Global
	registry *destination.Registry
	recent   recency.Store
	observer metrics.PipelineObserver
	audit    chan<- domain.ForwardFailure
	log      zerolog.Logger
	now      func() time.Time
	lastItem atomic.Time
}

type Option func(*Dispatcher)

func WithObserver(obs metrics.PipelineObserver) Option {
	return func(d *Dispatcher) {
		d.observer = obs
	}
}

// WithAuditChannel routes platform-rejected forwards to the audit
// handler. Sends never block: a full channel drops the record.
func WithAuditChannel(ch chan<- domain.ForwardFailure) Option {
	return func(d *Dispatcher) {
		d.audit = ch
	}
}

// WithClock overrides the age-gate clock.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func New(cfg Config, source platform.StreamSource, pub platform.Publisher,
	global *filter.Global, registry *destination.Registry, recent recency.Store,
	log zerolog.Logger, opts ...Option) *Dispatcher {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	d := &Dispatcher{
		cfg:      cfg,
		source:   source,
		pub:      pub,
		global:   global,
		registry: registry,
		recent:   recent,
		observer: metrics.NoopObserver{},
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// LastItemTime reports when the dispatcher last pulled an item; zero
// before the first item. Safe for concurrent readers (healthz).
func (d *Dispatcher) LastItemTime() time.Time {
	return d.lastItem.Load()
}

// Run supervises the stream until the context is canceled. It has no
// success exit: every stream failure is classified into a reconnect
// path and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	state := Connecting
	var stream platform.Stream
	for {
		if ctx.Err() != nil {
			if stream != nil {
				stream.Close()
			}
			return ctx.Err()
		}
		switch state {
		case Connecting:
			s, err := d.open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				state = d.reconnectState(err)
				continue
			}
			stream = s
			state = Streaming
		case Streaming:
			err := d.consume(ctx, stream)
			stream.Close()
			stream = nil
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state = d.reconnectState(err)
		case Backoff:
			d.log.Warn().Dur("backoff", d.cfg.Backoff).Msg("Platform is down. Sleeping before reconnect")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.Backoff):
			}
			state = Connecting
		}
	}
}

func (d *Dispatcher) open(ctx context.Context) (platform.Stream, error) {
	ctx, span := telemetry.StartConnectSpan(ctx)
	defer span.End()
	return d.source.Open(ctx)
}

// reconnectState maps a stream failure to the next state. End of
// stream and connection-level failures reconnect immediately; a
// service-level outage earns the fixed backoff sleep. Nothing here is
// ever fatal.
func (d *Dispatcher) reconnectState(err error) State {
	if errors.Is(err, platform.ErrEndOfStream) {
		d.log.Warn().Msg("Stream ended. Restarting")
		d.observer.RecordReconnect("end_of_stream")
		return Connecting
	}
	if te := platform.AsTransport(err); te != nil && te.Kind == platform.ServiceUnavailable {
		d.observer.RecordReconnect(te.Kind.String())
		return Backoff
	}
	d.log.Warn().Err(err).Msg("Connection failed. Reconnecting")
	d.observer.RecordReconnect(platform.ConnectionFailed.String())
	return Connecting
}

func (d *Dispatcher) consume(ctx context.Context, stream platform.Stream) error {
	for {
		item, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		d.lastItem.Store(d.now())
		d.observer.RecordItemConsumed()
		if err := d.process(ctx, item); err != nil {
			// Only transport failures escape the per-item pipeline;
			// they get the same reconnect treatment as read failures.
			return err
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, item *domain.Item) error {
	ctx, span := telemetry.StartItemSpan(ctx, item)
	defer span.End()

	if ok, reason := d.global.Allow(item); !ok {
		d.observer.RecordItemFiltered(reason)
		return nil
	}

	for _, dest := range d.registry.Destinations() {
		if !dest.Accepts(item) || dest.UserBlacklisted(item) || dest.SourceBlacklisted(item) {
			continue
		}
		if !d.verifyAge(item) {
			// Account age is a property of the author, not of the
			// destination: a failed gate skips every remaining
			// destination in this pass.
			d.observer.RecordItemFiltered("author_too_new")
			return nil
		}
		if !d.recent.ShouldForward(recency.Key(item.URL, dest.Name)) {
			d.log.Info().Str("destination", dest.Name).Str("title", item.Title).
				Msg("Already posted recently. Skipping")
			d.observer.RecordRecencySkip()
			continue
		}
		if err := d.forward(ctx, item, dest.Name); err != nil {
			return err
		}
	}
	return nil
}

// verifyAge applies the minimum-account-age gate, memoizing a pass on
// the item so later destinations in the same pass skip the arithmetic.
func (d *Dispatcher) verifyAge(item *domain.Item) bool {
	if item.AgeVerified {
		return true
	}
	days := int(d.now().UTC().Sub(item.AuthorCreated.UTC()).Hours() / 24)
	if days > minAccountAgeDays {
		item.AgeVerified = true
		return true
	}
	return false
}

func (d *Dispatcher) forward(ctx context.Context, item *domain.Item, dest string) error {
	ctx, span := telemetry.StartForwardSpan(ctx, item, dest)
	defer span.End()

	d.log.Info().Str("destination", dest).Str("title", item.Title).Msg("X-posting")
	if d.cfg.DryRun {
		d.observer.RecordForward("dry_run")
		return nil
	}

	start := d.now()
	handle, err := d.pub.Submit(ctx, dest, item.Title, item.URL)
	if err != nil {
		return d.classifyForwardError(item, dest, err)
	}

	comment := fmt.Sprintf("[Original post](%s) by /u/%s in /r/%s",
		item.Permalink, item.Author, item.Subreddit)
	if err := d.pub.Annotate(ctx, handle, comment); err != nil {
		return d.classifyForwardError(item, dest, err)
	}

	d.observer.RecordForward("forwarded")
	d.observer.RecordForwardDuration(d.now().Sub(start).Seconds())
	return nil
}

// classifyForwardError contains per-item publish failures. A conflict
// is the expected secondary dedup net and is not a warning; a platform
// rejection is logged, audited, and never retried; a transport failure
// propagates so the stream loop reconnects.
func (d *Dispatcher) classifyForwardError(item *domain.Item, dest string, err error) error {
	var conflict *platform.ConflictError
	if errors.As(err, &conflict) {
		d.log.Info().Str("destination", dest).Msg("Already submitted. Skipping")
		d.observer.RecordForward("conflict")
		return nil
	}
	if te := platform.AsTransport(err); te != nil {
		return err
	}
	d.log.Warn().Err(err).Str("destination", dest).Str("title", item.Title).
		Msg("Platform rejected forward")
	d.observer.RecordForward("rejected")
	d.sendAudit(domain.ForwardFailure{
		Item:        *item,
		Destination: dest,
		Err:         err,
		At:          d.now().UTC(),
	})
	return nil
}

func (d *Dispatcher) sendAudit(failure domain.ForwardFailure) {
	if d.audit == nil {
		return
	}
	select {
	case d.audit <- failure:
	default:
		d.observer.RecordAuditDropped()
	}
}
