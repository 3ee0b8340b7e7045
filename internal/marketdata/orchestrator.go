// Package marketdata is the façade the rest of the application talks to. It
// composes the tiered cache, request dedup, circuit breaker, OHLC aggregation
// and historical resolution behind a handful of calls.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/internal/cache"
	"github.com/najdi123/currency-sub003/internal/history"
	"github.com/najdi123/currency-sub003/pkg/breaker"
	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/dedup"
	"github.com/najdi123/currency-sub003/pkg/market"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

var (
	// ErrUnavailable means neither the provider nor any cache tier could answer.
	ErrUnavailable = errors.New("marketdata: data unavailable")
	// ErrInvalidArgument marks caller mistakes such as an unknown category.
	ErrInvalidArgument = errors.New("marketdata: invalid argument")
)

// ContextOHLCSave is the breaker context for persisting closed bars.
const ContextOHLCSave = "db:ohlc-save"

// MaxHistoryDays bounds GetHistory.
const MaxHistoryDays = 366

// Source tells where current data came from.
type Source string

const (
	SourceFresh Source = "fresh"
	SourceStale Source = "stale"
	SourceAPI   Source = "api"
)

// Metadata describes a Current response.
type Metadata struct {
	Source    Source    `json:"source"`
	IsStale   bool      `json:"isStale"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Current is the latest known data of one category.
type Current struct {
	Data     []market.Observation `json:"data"`
	Metadata Metadata             `json:"metadata"`
}

// snapshot is what the fresh and stale tiers hold.
type snapshot struct {
	Data      []market.Observation `msgpack:"data"`
	FetchedAt time.Time            `msgpack:"fetched_at"`
}

// Deps are the collaborators of an Orchestrator. Provider is required. A nil
// Cache disables caching; the rest default to in-memory implementations.
type Deps struct {
	Provider   market.Provider
	Cache      *cache.Tiered
	Tracker    *breaker.Tracker
	Aggregator *ohlc.Aggregator
	Bars       ohlc.Store
	History    *history.Resolver
	Clock      clock.Clock
	DedupTTL   time.Duration
}

// Orchestrator answers current, historical and OHLC queries.
type Orchestrator struct {
	provider market.Provider
	cache    *cache.Tiered
	tracker  *breaker.Tracker
	agg      *ohlc.Aggregator
	bars     ohlc.Store
	history  *history.Resolver
	clock    clock.Clock
	fetches  *dedup.Group[*snapshot]
}

// New wires an Orchestrator from deps.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Provider == nil {
		return nil, errors.New("marketdata: provider is required")
	}
	clk := clock.OrReal(deps.Clock)
	o := &Orchestrator{
		provider: deps.Provider,
		cache:    deps.Cache,
		tracker:  deps.Tracker,
		agg:      deps.Aggregator,
		bars:     deps.Bars,
		history:  deps.History,
		clock:    clk,
		fetches:  dedup.NewGroup[*snapshot]("fetch", dedup.WithTTL(deps.DedupTTL), dedup.WithClock(clk)),
	}
	if o.tracker == nil {
		o.tracker = breaker.NewTracker(breaker.DefaultConfig(), clk)
	}
	if o.agg == nil {
		o.agg = ohlc.NewAggregator(ohlc.WithClock(clk))
	}
	if o.bars == nil {
		o.bars = ohlc.NewMemoryStore()
	}
	if o.history == nil {
		o.history = history.NewResolver(o.cache, o.bars, nil)
	}
	return o, nil
}

func fetchContext(category market.Category) string {
	return breaker.FetchPrefix + string(category)
}

// GetCurrent returns the latest data of category: the fresh tier when it
// holds an entry, otherwise a provider fetch, falling back to the stale tier
// when the fetch fails or the category's circuit is open.
func (o *Orchestrator) GetCurrent(ctx context.Context, category market.Category) (*Current, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}
	var snap snapshot
	if o.cache.Get(ctx, cache.TierFresh, string(category), &snap) {
		return &Current{Data: snap.Data, Metadata: Metadata{Source: SourceFresh, FetchedAt: snap.FetchedAt}}, nil
	}
	return o.fetchOrStale(ctx, category)
}

// Refresh skips the fresh tier and goes to the provider. The warmer uses it
// to keep the fresh tier populated.
func (o *Orchestrator) Refresh(ctx context.Context, category market.Category) (*Current, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}
	return o.fetchOrStale(ctx, category)
}

func (o *Orchestrator) fetchOrStale(ctx context.Context, category market.Category) (*Current, error) {
	if o.tracker.IsOpen(fetchContext(category)) {
		logx.WithContext(ctx).Infof("marketdata: %s circuit open, serving stale", category)
		name := fetchContext(category)
		rec, _ := o.tracker.Record(name)
		return o.stale(ctx, category, &breaker.CircuitBreakerError{
			Context:   name,
			Count:     rec.Count,
			Threshold: o.tracker.ThresholdFor(name),
		})
	}

	snap, _, err := o.fetches.Do(ctx, fetchContext(category), func(ctx context.Context) (*snapshot, error) {
		return o.refresh(ctx, category)
	})
	if err == nil {
		return &Current{Data: snap.Data, Metadata: Metadata{Source: SourceAPI, FetchedAt: snap.FetchedAt}}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return o.stale(ctx, category, err)
}

// refresh runs once per dedup key. It owns every side effect of a fetch so
// abandoned callers still leave the caches populated.
func (o *Orchestrator) refresh(ctx context.Context, category market.Category) (*snapshot, error) {
	name := fetchContext(category)
	obs, err := o.provider.Fetch(ctx, category)
	partial := err != nil && len(obs) > 0 && errors.Is(err, market.ErrPartial)
	switch {
	case partial:
		logx.WithContext(ctx).Errorf("marketdata: fetch %s returned %d observations in part: %v", category, len(obs), err)
	case err != nil:
		verdict := o.tracker.TrackError(name, err)
		if verdict.Tripped() {
			return nil, fmt.Errorf("%w: %w", verdict.Err(), err)
		}
		logx.WithContext(ctx).Errorf("marketdata: fetch %s failed (%d/%d): %v",
			category, verdict.Record.Count, verdict.Threshold, err)
		return nil, err
	default:
		o.tracker.ResetError(name)
	}

	snap := &snapshot{Data: obs, FetchedAt: o.clock.Now()}
	o.cache.Set(ctx, cache.TierFresh, string(category), snap)
	if len(obs) > 0 && !partial {
		// Empty or truncated answers must not erase the last good fallback.
		o.cache.Set(ctx, cache.TierStale, string(category), snap)
	}

	touched := o.agg.FoldAll(ctx, obs, ohlc.Hour, ohlc.Day)
	o.refreshOHLCTier(ctx, category, touched)
	return snap, nil
}

// refreshOHLCTier rewrites the OHLC tier for every day touched by a fold,
// both per item and for the whole category.
func (o *Orchestrator) refreshOHLCTier(ctx context.Context, category market.Category, touched []ohlc.Bar) {
	days := make(map[time.Time]struct{})
	for _, b := range touched {
		if b.Period != ohlc.Day {
			continue
		}
		o.cache.Set(ctx, cache.TierOHLC, cache.DayKey(b.Item, b.PeriodStart), []ohlc.Bar{b})
		days[b.PeriodStart] = struct{}{}
	}
	for day := range days {
		o.cache.Set(ctx, cache.TierOHLC, cache.DayKey(string(category), day), o.liveDayBars(string(category), day))
	}
}

func (o *Orchestrator) liveDayBars(subject string, day time.Time) []ohlc.Bar {
	out := make([]ohlc.Bar, 0)
	for _, b := range o.agg.Bars(subject) {
		if b.Period == ohlc.Day && b.PeriodStart.Equal(day) {
			out = append(out, b)
		}
	}
	return out
}

func (o *Orchestrator) stale(ctx context.Context, category market.Category, cause error) (*Current, error) {
	var snap snapshot
	if o.cache.Get(ctx, cache.TierStale, string(category), &snap) {
		logx.WithContext(ctx).Infof("marketdata: serving stale %s from %s: %v",
			category, snap.FetchedAt.Format(time.RFC3339), cause)
		return &Current{Data: snap.Data, Metadata: Metadata{Source: SourceStale, IsStale: true, FetchedAt: snap.FetchedAt}}, nil
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, category, cause)
}

// GetHistorical returns the data point of category for the day of date.
// history.ErrNotFound means there is no data for that day.
func (o *Orchestrator) GetHistorical(ctx context.Context, category market.Category, date time.Time) (*history.DataPoint, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}
	return o.history.Resolve(ctx, string(category), date)
}

// GetHistoricalRange returns every day in [start, end] that has data, in
// ascending order.
func (o *Orchestrator) GetHistoricalRange(ctx context.Context, category market.Category, start, end time.Time) ([]*history.DataPoint, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}
	return o.history.ResolveRange(ctx, string(category), start, end)
}

// GetHistory returns the last days calendar days of category, today included.
func (o *Orchestrator) GetHistory(ctx context.Context, category market.Category, days int) ([]*history.DataPoint, error) {
	if days <= 0 || days > MaxHistoryDays {
		return nil, fmt.Errorf("%w: days must be within [1, %d], got %d", ErrInvalidArgument, MaxHistoryDays, days)
	}
	end := ohlc.StartOfDay(o.clock.Now())
	return o.GetHistoricalRange(ctx, category, end.AddDate(0, 0, -(days-1)), end)
}

// GetOHLC returns the daily bars of subject (item code or category) for the
// day of date: OHLC tier first, then bars still held by the aggregator, then
// the bar store. An empty result means no bars exist.
func (o *Orchestrator) GetOHLC(ctx context.Context, subject string, date time.Time) ([]ohlc.Bar, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidArgument)
	}
	day := ohlc.StartOfDay(date)
	key := cache.DayKey(subject, day)

	var bars []ohlc.Bar
	if o.cache.Get(ctx, cache.TierOHLC, key, &bars) && len(bars) > 0 {
		return bars, nil
	}
	if live := o.liveDayBars(subject, day); len(live) > 0 {
		o.cache.Set(ctx, cache.TierOHLC, key, live)
		return live, nil
	}
	stored, err := ohlc.DayBars(ctx, o.bars, subject, day)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logx.WithContext(ctx).Errorf("marketdata: ohlc lookup %s failed: %v", key, err)
		return []ohlc.Bar{}, nil
	}
	if len(stored) > 0 {
		o.cache.Set(ctx, cache.TierOHLC, key, stored)
	}
	return stored, nil
}

// FlushBars saves every closed bar and evicts it from the aggregator once the
// save succeeded. It returns the number of evicted bars.
func (o *Orchestrator) FlushBars(ctx context.Context) (int, error) {
	closed := o.agg.Closed(o.clock.Now())
	if len(closed) == 0 {
		return 0, nil
	}
	if err := o.bars.SaveBars(ctx, closed); err != nil {
		verdict := o.tracker.TrackError(ContextOHLCSave, err)
		if verdict.Tripped() {
			return 0, fmt.Errorf("marketdata: flush bars: %w: %w", verdict.Err(), err)
		}
		return 0, fmt.Errorf("marketdata: flush bars: %w", err)
	}
	o.tracker.ResetError(ContextOHLCSave)
	n := o.agg.Evict(closed)
	logx.WithContext(ctx).Infof("marketdata: flushed %d closed bars, evicted %d", len(closed), n)
	return n, nil
}

// GetHealth summarises the breaker state.
func (o *Orchestrator) GetHealth() breaker.Health {
	return o.tracker.Health()
}

// Tracker exposes the breaker for diagnostics.
func (o *Orchestrator) Tracker() *breaker.Tracker { return o.tracker }
