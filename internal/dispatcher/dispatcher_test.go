package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imagesof/relay/internal/destination"
	"github.com/imagesof/relay/internal/docstore"
	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/platform"
	"github.com/imagesof/relay/internal/recency"
)

// runDispatcher starts Run in the background and returns the cancel
// function plus the channel carrying Run's return value.
func runDispatcher(d *Dispatcher) (context.CancelFunc, chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return cancel, done
}

func stopAndCheck(t *testing.T, cancel context.CancelFunc, done chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, expected context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestForwardsToEveryMatchingDestination(t *testing.T) {
	item := testItem()
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	reg := registryOf(t, nil, anySpec("earthpics"), keywordSpec("lakes", "lake"), keywordSpec("deserts", "dune"))
	d := New(Config{}, source, pub, testFilter(t), reg, recency.NewFIFOStore(recency.DefaultCapacity),
		nopLogger(), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return len(pub.submitted()) == 2 },
		"expected forwards to both matching destinations")
	stopAndCheck(t, cancel, done)

	subs := pub.submitted()
	if subs[0].destination != "earthpics" || subs[1].destination != "lakes" {
		t.Fatalf("forwarded to %s then %s, expected configuration order earthpics, lakes",
			subs[0].destination, subs[1].destination)
	}
	for _, s := range subs {
		if s.destination == "deserts" {
			t.Fatal("forwarded to a destination whose rule does not match")
		}
		if s.title != item.Title || s.url != item.URL {
			t.Fatalf("forwarded %q %q, expected the item's title and url", s.title, s.url)
		}
	}
	want := "[Original post](https://www.reddit.com/r/pics/comments/abc123/) by /u/photographer in /r/pics"
	if len(pub.annotations) != 2 || pub.annotations[0] != want {
		t.Fatalf("attribution comment = %q, expected %q", pub.annotations[0], want)
	}
}

func TestGlobalRejectionSkipsEveryDestination(t *testing.T) {
	item := testItem()
	item.NSFW = true
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	spy := newObserverSpy()
	d := New(Config{}, source, pub, testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("filtered:nsfw") == 1 },
		"expected the item to be rejected as nsfw")
	stopAndCheck(t, cancel, done)

	if len(pub.submitted()) != 0 {
		t.Fatal("rejected item was forwarded")
	}
}

func TestSameLinkForwardedOncePerDestination(t *testing.T) {
	first := testItem()
	second := testItem()
	second.ID = "def456"
	second.Title = "Crater Lake again"
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{first, second}}}}
	pub := newFakePublisher()
	spy := newObserverSpy()
	d := New(Config{}, source, pub, testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("recency_skip") == 1 },
		"expected the repeated link to be skipped")
	stopAndCheck(t, cancel, done)

	if got := len(pub.submitted()); got != 1 {
		t.Fatalf("forwarded %d times, expected once per link per destination", got)
	}
}

func TestAccountAgeGateBoundary(t *testing.T) {
	exactlyTwoDays := testItem()
	exactlyTwoDays.AuthorCreated = fixedNow.Add(-48 * time.Hour)
	threeDays := testItem()
	threeDays.ID = "def456"
	threeDays.URL = "https://i.imgur.com/other.jpg"
	threeDays.AuthorCreated = fixedNow.Add(-72 * time.Hour)

	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{exactlyTwoDays, threeDays}}}}
	pub := newFakePublisher()
	spy := newObserverSpy()
	d := New(Config{}, source, pub, testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return len(pub.submitted()) == 1 },
		"expected only the three-day-old account to pass the age gate")
	stopAndCheck(t, cancel, done)

	if spy.count("filtered:author_too_new") != 1 {
		t.Fatal("two-day-old account was not rejected by the age gate")
	}
	if pub.submitted()[0].url != threeDays.URL {
		t.Fatal("wrong item passed the age gate")
	}
}

func TestYoungAuthorSkipsRemainingDestinations(t *testing.T) {
	item := testItem()
	item.AuthorCreated = fixedNow.Add(-24 * time.Hour)
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	spy := newObserverSpy()
	d := New(Config{}, source, pub, testFilter(t),
		registryOf(t, nil, anySpec("earthpics"), anySpec("lakes")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("filtered:author_too_new") == 1 },
		"expected the age gate to reject the item")
	stopAndCheck(t, cancel, done)

	if len(pub.submitted()) != 0 {
		t.Fatal("age gate failure must skip every destination, not just the first")
	}
	if spy.count("filtered:author_too_new") != 1 {
		t.Fatal("age gate rejection recorded more than once for a single item")
	}
}

func TestDestinationBlacklistSkipsOnlyThatDestination(t *testing.T) {
	store := docstore.NewInMemoryStore()
	store.Put("earthpics", "userblacklist", "/u/photographer\n")
	item := testItem()
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	specs := []destination.Spec{anySpec("earthpics"), anySpec("lakes")}
	specs[0].BlacklistPage = "userblacklist"
	d := New(Config{}, source, pub, testFilter(t), registryOf(t, store, specs...),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return len(pub.submitted()) == 1 },
		"expected a forward to the destination without the blacklist")
	stopAndCheck(t, cancel, done)

	if pub.submitted()[0].destination != "lakes" {
		t.Fatalf("forwarded to %s, expected only lakes", pub.submitted()[0].destination)
	}
}

func TestConflictSkipsWithoutAudit(t *testing.T) {
	item := testItem()
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	pub.errs["earthpics"] = &platform.ConflictError{Destination: "earthpics"}
	spy := newObserverSpy()
	audit := make(chan domain.ForwardFailure, 4)
	d := New(Config{}, source, pub, testFilter(t),
		registryOf(t, nil, anySpec("earthpics"), anySpec("lakes")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithAuditChannel(audit), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("forward:conflict") == 1 && len(pub.submitted()) == 1 },
		"expected the conflict to be skipped and the next destination tried")
	stopAndCheck(t, cancel, done)

	if pub.submitted()[0].destination != "lakes" {
		t.Fatal("conflict on one destination must not block the others")
	}
	select {
	case f := <-audit:
		t.Fatalf("conflict produced an audit record for %s", f.Destination)
	default:
	}
}

func TestPlatformRejectionIsAudited(t *testing.T) {
	item := testItem()
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	pub.errs["earthpics"] = &platform.PlatformError{Code: "QUOTA_FILLED", Message: "slow down"}
	spy := newObserverSpy()
	audit := make(chan domain.ForwardFailure, 4)
	d := New(Config{}, source, pub, testFilter(t),
		registryOf(t, nil, anySpec("earthpics"), anySpec("lakes")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithAuditChannel(audit), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return len(pub.submitted()) == 1 },
		"expected the rejection to be contained and the next destination tried")
	stopAndCheck(t, cancel, done)

	select {
	case f := <-audit:
		if f.Destination != "earthpics" || f.Item.ID != item.ID {
			t.Fatalf("audit record for %s/%s, expected earthpics/%s", f.Destination, f.Item.ID, item.ID)
		}
	default:
		t.Fatal("platform rejection did not produce an audit record")
	}
	if spy.count("forward:rejected") != 1 {
		t.Fatal("rejection outcome was not recorded")
	}
}

func TestTransportFailureOnWriteReconnects(t *testing.T) {
	item := testItem()
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	pub := newFakePublisher()
	pub.errs["earthpics"] = &platform.TransportError{Kind: platform.ConnectionFailed, Err: errors.New("broken pipe")}
	spy := newObserverSpy()
	d := New(Config{}, source, pub, testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return source.openCount() == 2 },
		"expected a write-path transport failure to reconnect the stream")
	stopAndCheck(t, cancel, done)

	if spy.count("reconnect:connection_failed") != 1 {
		t.Fatal("reconnect cause was not recorded as connection_failed")
	}
}

func TestEndOfStreamReconnectsImmediately(t *testing.T) {
	source := &scriptedSource{streams: []*fakeStream{{final: platform.ErrEndOfStream}}}
	spy := newObserverSpy()
	d := New(Config{}, source, newFakePublisher(), testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(), WithObserver(spy))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return source.openCount() == 2 },
		"expected an immediate reconnect after end of stream")
	stopAndCheck(t, cancel, done)

	if spy.count("reconnect:end_of_stream") != 1 {
		t.Fatal("reconnect cause was not recorded as end_of_stream")
	}
}

func TestServiceUnavailableSleepsBeforeReconnect(t *testing.T) {
	source := &scriptedSource{streams: []*fakeStream{
		{final: &platform.TransportError{Kind: platform.ServiceUnavailable, Err: errors.New("503")}},
	}}
	spy := newObserverSpy()
	d := New(Config{Backoff: 20 * time.Millisecond}, source, newFakePublisher(), testFilter(t),
		registryOf(t, nil, anySpec("earthpics")), recency.NewFIFOStore(recency.DefaultCapacity),
		nopLogger(), WithObserver(spy))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("reconnect:service_unavailable") == 1 },
		"expected the outage to be classified as service_unavailable")
	// The loop must still be alive: it is asleep in backoff, not exited.
	select {
	case err := <-done:
		t.Fatalf("Run exited with %v during backoff", err)
	default:
	}
	waitFor(t, func() bool { return source.openCount() == 2 },
		"expected a reconnect after the backoff sleep")
	stopAndCheck(t, cancel, done)
}

func TestBackoffSleepIsInterruptedByCancellation(t *testing.T) {
	source := &scriptedSource{streams: []*fakeStream{
		{final: &platform.TransportError{Kind: platform.ServiceUnavailable, Err: errors.New("503")}},
	}}
	spy := newObserverSpy()
	d := New(Config{Backoff: time.Hour}, source, newFakePublisher(), testFilter(t),
		registryOf(t, nil, anySpec("earthpics")), recency.NewFIFOStore(recency.DefaultCapacity),
		nopLogger(), WithObserver(spy))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("reconnect:service_unavailable") == 1 },
		"expected the loop to enter backoff")
	stopAndCheck(t, cancel, done)
}

func TestDryRunRecordsRecencyWithoutSubmitting(t *testing.T) {
	first := testItem()
	second := testItem()
	second.ID = "def456"
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{first, second}}}}
	pub := newFakePublisher()
	spy := newObserverSpy()
	d := New(Config{DryRun: true}, source, pub, testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithObserver(spy), WithClock(func() time.Time { return fixedNow }))

	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return spy.count("forward:dry_run") == 1 && spy.count("recency_skip") == 1 },
		"expected one dry-run forward and one recency skip")
	stopAndCheck(t, cancel, done)

	if len(pub.submitted()) != 0 {
		t.Fatal("dry run performed a real submit")
	}
	if len(pub.annotations) != 0 {
		t.Fatal("dry run performed a real annotate")
	}
}

func TestLastItemTimeTracksConsumption(t *testing.T) {
	item := testItem()
	source := &scriptedSource{streams: []*fakeStream{{items: []*domain.Item{item}}}}
	d := New(Config{}, source, newFakePublisher(), testFilter(t), registryOf(t, nil, anySpec("earthpics")),
		recency.NewFIFOStore(recency.DefaultCapacity), nopLogger(),
		WithClock(func() time.Time { return fixedNow }))

	if !d.LastItemTime().IsZero() {
		t.Fatal("last item time must be zero before the first item")
	}
	cancel, done := runDispatcher(d)
	waitFor(t, func() bool { return d.LastItemTime().Equal(fixedNow) },
		"expected last item time to follow consumption")
	stopAndCheck(t, cancel, done)
}

func TestReconnectStateClassification(t *testing.T) {
	d := New(Config{}, &scriptedSource{}, newFakePublisher(), testFilter(t),
		registryOf(t, nil, anySpec("earthpics")), recency.NoopStore{}, nopLogger())

	if got := d.reconnectState(platform.ErrEndOfStream); got != Connecting {
		t.Fatalf("end of stream mapped to %s, expected connecting", got)
	}
	sv := &platform.TransportError{Kind: platform.ServiceUnavailable, Err: errors.New("503")}
	if got := d.reconnectState(sv); got != Backoff {
		t.Fatalf("service unavailable mapped to %s, expected backoff", got)
	}
	cf := &platform.TransportError{Kind: platform.ConnectionFailed, Err: errors.New("reset")}
	if got := d.reconnectState(cf); got != Connecting {
		t.Fatalf("connection failure mapped to %s, expected connecting", got)
	}
	if got := d.reconnectState(errors.New("weird")); got != Connecting {
		t.Fatalf("unclassified failure mapped to %s, expected connecting", got)
	}
}
