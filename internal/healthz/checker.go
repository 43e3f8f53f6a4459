package healthz

import (
	"encoding/json"
	"net/http"
	"time"
)

// ActivityReporter exposes when the dispatcher last pulled an item
// from the stream.
type ActivityReporter interface {
	LastItemTime() time.Time
}

type Checker struct {
	reporter  ActivityReporter
	threshold time.Duration
}

type Option func(*Checker)

func WithThreshold(d time.Duration) Option {
	return func(c *Checker) {
		c.threshold = d
	}
}

// NewChecker reports unhealthy when no item has been seen within the
// threshold. The default tolerates one full backoff sleep, so a relay
// waiting out a platform outage is still considered live.
func NewChecker(reporter ActivityReporter, opts ...Option) *Checker {
	c := &Checker{
		reporter:  reporter,
		threshold: 5 * time.Minute,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type response struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	SinceLastItem string `json:"since_last_item,omitempty"`
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	last := c.reporter.LastItemTime()

	if last.IsZero() {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, response{Status: "unhealthy", Message: "no items consumed yet"})
		return
	}

	elapsed := time.Since(last)
	if elapsed > c.threshold {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, response{
			Status:        "unhealthy",
			Message:       "stale: no items within threshold",
			SinceLastItem: elapsed.Round(time.Millisecond).String(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, response{
		Status:        "ok",
		SinceLastItem: elapsed.Round(time.Millisecond).String(),
	})
}

func writeJSON(w http.ResponseWriter, v response) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
