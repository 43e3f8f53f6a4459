package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/imagesof/relay/internal/blacklist"
	"github.com/imagesof/relay/internal/destination"
	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/filter"
	"github.com/imagesof/relay/internal/platform"
	"github.com/imagesof/relay/internal/rules"
)

// fixedNow anchors the age-gate clock so account-age boundaries are
// exact.
var fixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// fakeStream serves a fixed batch of items, then returns its final
// error. A nil final error blocks until the context is canceled.
type fakeStream struct {
	items  []*domain.Item
	final  error
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (*domain.Item, error) {
	if len(s.items) > 0 {
		item := s.items[0]
		s.items = s.items[1:]
		return item, nil
	}
	if s.final != nil {
		return nil, s.final
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeStream) Close() { s.closed = true }

// scriptedSource hands out streams in order; once exhausted it serves
// empty streams that block until cancellation.
type scriptedSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	opens   int
}

func (s *scriptedSource) Open(context.Context) (platform.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if len(s.streams) > 0 {
		stream := s.streams[0]
		s.streams = s.streams[1:]
		return stream, nil
	}
	return &fakeStream{}, nil
}

func (s *scriptedSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

type submission struct {
	destination string
	title       string
	url         string
}

// fakePublisher records submissions and annotations; errs maps a
// destination to the error its next submit should return.
type fakePublisher struct {
	mu          sync.Mutex
	submissions []submission
	annotations []string
	errs        map[string]error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{errs: make(map[string]error)}
}

func (p *fakePublisher) Submit(_ context.Context, dest, title, url string) (platform.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[dest]; ok {
		return "", err
	}
	p.submissions = append(p.submissions, submission{destination: dest, title: title, url: url})
	return platform.Handle("t3_" + dest), nil
}

func (p *fakePublisher) Annotate(_ context.Context, _ platform.Handle, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.annotations = append(p.annotations, text)
	return nil
}

func (p *fakePublisher) submitted() []submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]submission, len(p.submissions))
	copy(out, p.submissions)
	return out
}

// observerSpy counts observer callbacks by name.
type observerSpy struct {
	mu     sync.Mutex
	counts map[string]int
}

func newObserverSpy() *observerSpy {
	return &observerSpy{counts: make(map[string]int)}
}

func (o *observerSpy) bump(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[key]++
}

func (o *observerSpy) count(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}

func (o *observerSpy) RecordItemConsumed()              { o.bump("consumed") }
func (o *observerSpy) RecordItemFiltered(reason string) { o.bump("filtered:" + reason) }
func (o *observerSpy) RecordForward(outcome string)     { o.bump("forward:" + outcome) }
func (o *observerSpy) RecordRecencySkip()               { o.bump("recency_skip") }
func (o *observerSpy) RecordReconnect(cause string)     { o.bump("reconnect:" + cause) }
func (o *observerSpy) RecordForwardDuration(_ float64)  {}
func (o *observerSpy) RecordAuditSinkError()            { o.bump("audit_sink_error") }
func (o *observerSpy) RecordAuditDropped()              { o.bump("audit_dropped") }

func testFilter(t *testing.T) *filter.Global {
	t.Helper()
	matcher, err := rules.NewMatcher([]string{"i.imgur.com"}, []string{".jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return filter.NewGlobal(false,
		blacklist.Parse("/u/globalpest\n"),
		blacklist.Parse("/r/globalbadsub\n"),
		matcher)
}

func registryOf(t *testing.T, store platform.DocumentStore, specs ...destination.Spec) *destination.Registry {
	t.Helper()
	reg, err := destination.NewRegistry(context.Background(), specs, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reg
}

func anySpec(name string) destination.Spec {
	return destination.Spec{Name: name, Rule: destination.RuleSpec{Kind: "any"}}
}

func keywordSpec(name, keyword string) destination.Spec {
	return destination.Spec{Name: name, Rule: destination.RuleSpec{Kind: "keyword", Keywords: []string{keyword}}}
}

func testItem() *domain.Item {
	return &domain.Item{
		ID:            "abc123",
		Title:         "Crater Lake at dawn",
		Subreddit:     "pics",
		Author:        "photographer",
		AuthorCreated: fixedNow.AddDate(-1, 0, 0),
		URL:           "https://i.imgur.com/crater.jpg",
		Domain:        "i.imgur.com",
		Permalink:     "https://www.reddit.com/r/pics/comments/abc123/",
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
