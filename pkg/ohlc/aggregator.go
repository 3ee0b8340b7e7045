package ohlc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/market"
)

type barKey struct {
	item   string
	period Period
	start  time.Time
}

// liveBar is an open bar plus the timestamp of the newest observation folded
// into it.
type liveBar struct {
	Bar
	last time.Time
}

// Aggregator holds the open bars of every item. It is period-agnostic: the
// caller decides which periods each observation is folded into.
type Aggregator struct {
	clock clock.Clock

	mu   sync.Mutex
	bars map[barKey]*liveBar
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithClock sets the time source used to decide which periods are closed.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

// NewAggregator returns an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{clock: clock.Real(), bars: make(map[barKey]*liveBar)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fold adds obs to the bar of item for the period containing obs.Timestamp
// and returns the updated bar. ok is false when obs is skipped: a
// non-positive price (the parse sentinel), a period that has already closed,
// or a timestamp not newer than the last one folded into the bar.
func (a *Aggregator) Fold(item string, obs market.Observation, period Period) (bar Bar, ok bool) {
	if !obs.Price.IsPositive() {
		logx.Infof("ohlc: warning: skipping %s observation at %s with price %s",
			item, obs.Timestamp.Format(time.RFC3339), obs.Price)
		return Bar{}, false
	}
	start, end := period.Bounds(obs.Timestamp)
	if !a.clock.Now().Before(end) {
		// Closed bars are immutable; they may already be persisted.
		logx.Debugf("ohlc: skipping %s observation at %s, %s bar %s is closed",
			item, obs.Timestamp.Format(time.RFC3339), period, period.Key(obs.Timestamp))
		return Bar{}, false
	}
	key := barKey{item: item, period: period, start: start}

	a.mu.Lock()
	defer a.mu.Unlock()
	b, exists := a.bars[key]
	if !exists {
		b = &liveBar{Bar: Bar{Item: item, Category: obs.Category, Period: period, PeriodStart: start, PeriodEnd: end}}
		a.bars[key] = b
	} else if !obs.Timestamp.After(b.last) {
		logx.Debugf("ohlc: skipping %s observation at %s, already folded up to %s",
			item, obs.Timestamp.Format(time.RFC3339), b.last.Format(time.RFC3339))
		return Bar{}, false
	}
	b.fold(obs.Price)
	b.last = obs.Timestamp
	return b.Bar, true
}

// FoldAll folds every observation into each of the given periods and returns
// the touched bars.
func (a *Aggregator) FoldAll(ctx context.Context, obs []market.Observation, periods ...Period) []Bar {
	touched := make(map[barKey]Bar)
	for _, o := range obs {
		for _, p := range periods {
			bar, ok := a.Fold(o.ItemCode, o, p)
			if !ok {
				continue
			}
			touched[barKey{item: bar.Item, period: bar.Period, start: bar.PeriodStart}] = bar
		}
	}
	out := make([]Bar, 0, len(touched))
	for _, b := range touched {
		out = append(out, b)
	}
	sortBars(out)
	logx.WithContext(ctx).Debugf("ohlc: folded %d observations into %d bars", len(obs), len(out))
	return out
}

// Bar returns the live bar of item for the period containing t.
func (a *Aggregator) Bar(item string, period Period, t time.Time) (Bar, bool) {
	start, _ := period.Bounds(t)
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.bars[barKey{item: item, period: period, start: start}]
	if !ok {
		return Bar{}, false
	}
	return b.Bar, true
}

// Bars returns every live bar matching subject (item code or category).
func (a *Aggregator) Bars(subject string) []Bar {
	a.mu.Lock()
	out := make([]Bar, 0)
	for _, b := range a.bars {
		if b.Matches(subject) {
			out = append(out, b.Bar)
		}
	}
	a.mu.Unlock()
	sortBars(out)
	return out
}

// Closed returns the bars whose period has ended by now.
func (a *Aggregator) Closed(now time.Time) []Bar {
	a.mu.Lock()
	out := make([]Bar, 0)
	for _, b := range a.bars {
		if b.ClosedAt(now) {
			out = append(out, b.Bar)
		}
	}
	a.mu.Unlock()
	sortBars(out)
	return out
}

// Evict drops the given bars. A bar that received further samples since the
// snapshot was taken is kept so no observation is lost.
func (a *Aggregator) Evict(bars []Bar) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	evicted := 0
	for _, snap := range bars {
		key := barKey{item: snap.Item, period: snap.Period, start: snap.PeriodStart}
		if b, ok := a.bars[key]; ok && b.SampleCount == snap.SampleCount {
			delete(a.bars, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live bars.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bars)
}

func sortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool {
		if !bars[i].PeriodStart.Equal(bars[j].PeriodStart) {
			return bars[i].PeriodStart.Before(bars[j].PeriodStart)
		}
		if bars[i].Item != bars[j].Item {
			return bars[i].Item < bars[j].Item
		}
		return bars[i].Period < bars[j].Period
	})
}
