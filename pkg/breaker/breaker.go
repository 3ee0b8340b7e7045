// Package breaker tracks failures per logical context and signals when a
// context should stop being called.
package breaker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/clock"
)

const (
	DefaultThreshold = 5
	DefaultWindow    = time.Minute
	DefaultWarnAt    = 3

	// FetchPrefix marks provider-fetch contexts, which tolerate more failures.
	FetchPrefix           = "fetch:"
	DefaultFetchThreshold = 10
)

// Config controls thresholds and the sliding window.
type Config struct {
	Threshold int
	Window    time.Duration
	WarnAt    int
	// Overrides maps a context prefix to its own threshold. The longest
	// matching prefix wins.
	Overrides map[string]int
}

// DefaultConfig trips generic contexts at 5 failures and fetch contexts at 10
// within a minute, warning at 3.
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		Window:    DefaultWindow,
		WarnAt:    DefaultWarnAt,
		Overrides: map[string]int{FetchPrefix: DefaultFetchThreshold},
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.WarnAt <= 0 {
		c.WarnAt = DefaultWarnAt
	}
	return c
}

// Record is the failure history of one context.
type Record struct {
	Context         string    `json:"context"`
	Count           int       `json:"count"`
	FirstOccurrence time.Time `json:"firstOccurrence"`
	LastOccurrence  time.Time `json:"lastOccurrence"`
	LastError       string    `json:"lastError"`
}

// Outcome tags the result of TrackError.
type Outcome int

const (
	// Tracked means the failure was recorded and the context stays closed.
	Tracked Outcome = iota
	// Tripped means this failure brought the context to its threshold.
	Tripped
)

func (o Outcome) String() string {
	if o == Tripped {
		return "tripped"
	}
	return "tracked"
}

// Verdict is returned by TrackError so callers can branch on the outcome.
type Verdict struct {
	Outcome   Outcome
	Record    Record
	Threshold int
}

// Tripped reports whether the context reached its threshold.
func (v Verdict) Tripped() bool { return v.Outcome == Tripped }

// Err returns a *CircuitBreakerError when tripped and nil otherwise.
func (v Verdict) Err() error {
	if v.Outcome != Tripped {
		return nil
	}
	return &CircuitBreakerError{Context: v.Record.Context, Count: v.Record.Count, Threshold: v.Threshold}
}

// CircuitBreakerError signals that callers must stop calling Context until a
// success resets it.
type CircuitBreakerError struct {
	Context   string
	Count     int
	Threshold int
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s: %d errors (threshold %d)", e.Context, e.Count, e.Threshold)
}

// Tracker owns the per-context failure records.
type Tracker struct {
	cfg   Config
	clock clock.Clock

	mu      sync.Mutex
	records map[string]*Record
}

// NewTracker builds a tracker; a nil clock uses the system clock.
func NewTracker(cfg Config, c clock.Clock) *Tracker {
	return &Tracker{
		cfg:     cfg.withDefaults(),
		clock:   clock.OrReal(c),
		records: make(map[string]*Record),
	}
}

// ThresholdFor returns the trip threshold applied to context.
func (t *Tracker) ThresholdFor(context string) int {
	threshold, best := t.cfg.Threshold, -1
	for prefix, n := range t.cfg.Overrides {
		if n > 0 && strings.HasPrefix(context, prefix) && len(prefix) > best {
			threshold, best = n, len(prefix)
		}
	}
	return threshold
}

// TrackError records a failure for context. The count restarts at one when
// the window since the first occurrence has elapsed.
func (t *Tracker) TrackError(context string, err error) Verdict {
	now := t.clock.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	threshold := t.ThresholdFor(context)

	t.mu.Lock()
	rec, ok := t.records[context]
	if !ok || now.Sub(rec.FirstOccurrence) > t.cfg.Window {
		rec = &Record{Context: context, FirstOccurrence: now}
		t.records[context] = rec
	}
	rec.Count++
	rec.LastOccurrence = now
	rec.LastError = msg
	snapshot := *rec
	t.mu.Unlock()

	if snapshot.Count == t.cfg.WarnAt && snapshot.Count < threshold {
		logx.Infof("breaker: warning: %s has failed %d times: %s", context, snapshot.Count, msg)
	}
	if snapshot.Count >= threshold {
		if snapshot.Count == threshold {
			tripsTotal.Inc(context)
			logx.Errorf("breaker: %s tripped after %d errors (threshold %d): %s", context, snapshot.Count, threshold, msg)
		}
		return Verdict{Outcome: Tripped, Record: snapshot, Threshold: threshold}
	}
	return Verdict{Outcome: Tracked, Record: snapshot, Threshold: threshold}
}

// ResetError forgets context after a successful operation.
func (t *Tracker) ResetError(context string) {
	t.mu.Lock()
	_, ok := t.records[context]
	delete(t.records, context)
	t.mu.Unlock()
	if ok {
		logx.Infof("breaker: %s recovered", context)
	}
}

// IsOpen reports whether context is at or over its threshold and its last
// failure is still within the window.
func (t *Tracker) IsOpen(context string) bool {
	now := t.clock.Now()
	threshold := t.ThresholdFor(context)
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[context]
	if !ok {
		return false
	}
	return rec.Count >= threshold && now.Sub(rec.LastOccurrence) <= t.cfg.Window
}

// Record returns the current record for context.
func (t *Tracker) Record(context string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[context]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns a snapshot of all records sorted by context.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Context < out[j].Context })
	return out
}
