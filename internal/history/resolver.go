// Package history answers "what was the value of X on day D" by walking the
// historical cache tier, stored OHLC bars and the internal history API.
package history

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/mr"

	"github.com/najdi123/currency-sub003/internal/cache"
	"github.com/najdi123/currency-sub003/pkg/dedup"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

// ErrNotFound is a terminal answer: no source has data for the day.
var ErrNotFound = errors.New("history: no data for date")

// DefaultConcurrency caps simultaneous resolutions within a range.
const DefaultConcurrency = 5

// Source names where a data point came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceOHLC  Source = "ohlc"
	SourceAPI   Source = "api"
)

// Metadata is attached to every data point.
type Metadata struct {
	Source         Source `json:"source" msgpack:"source"`
	IsHistorical   bool   `json:"isHistorical" msgpack:"is_historical"`
	HistoricalDate string `json:"historicalDate" msgpack:"historical_date"`
}

// DataPoint is the resolved value of a subject (item code or category) for
// one calendar day.
type DataPoint struct {
	Subject  string     `json:"subject" msgpack:"subject"`
	Date     time.Time  `json:"date" msgpack:"date"`
	Bars     []ohlc.Bar `json:"bars" msgpack:"bars"`
	Metadata Metadata   `json:"metadata" msgpack:"metadata"`
}

// Fetcher is the last-resort history source. It returns ErrNotFound when it
// has nothing for the day.
type Fetcher interface {
	FetchDay(ctx context.Context, subject string, day time.Time) ([]ohlc.Bar, error)
}

// Resolver walks cache → OHLC store → API for one subject and day.
type Resolver struct {
	cache       *cache.Tiered
	store       ohlc.Store
	api         Fetcher
	group       *dedup.Group[*DataPoint]
	concurrency int
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithConcurrency bounds range resolution.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDedup replaces the per-day dedup registry.
func WithDedup(g *dedup.Group[*DataPoint]) Option {
	return func(r *Resolver) {
		if g != nil {
			r.group = g
		}
	}
}

// NewResolver wires the lookup chain. store and api may be nil.
func NewResolver(c *cache.Tiered, store ohlc.Store, api Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		cache:       c,
		store:       store,
		api:         api,
		group:       dedup.NewGroup[*DataPoint]("history"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the data point of subject for the calendar day of date.
// Concurrent calls for the same subject and day share one resolution.
func (r *Resolver) Resolve(ctx context.Context, subject string, date time.Time) (*DataPoint, error) {
	day := ohlc.StartOfDay(date)
	key := cache.DayKey(subject, day)
	dp, _, err := r.group.Do(ctx, key, func(ctx context.Context) (*DataPoint, error) {
		return r.resolve(ctx, subject, day, key)
	})
	return dp, err
}

func (r *Resolver) resolve(ctx context.Context, subject string, day time.Time, key string) (*DataPoint, error) {
	var cached DataPoint
	if r.cache.Get(ctx, cache.TierHistorical, key, &cached) {
		cached.Metadata.Source = SourceCache
		return &cached, nil
	}

	if r.store != nil {
		bars, err := ohlc.DayBars(ctx, r.store, subject, day)
		switch {
		case err != nil:
			logx.WithContext(ctx).Errorf("history: ohlc lookup %s failed, trying api: %v", key, err)
		case len(bars) > 0:
			return r.remember(ctx, key, newDataPoint(subject, day, bars, SourceOHLC)), nil
		}
	}

	if r.api != nil {
		bars, err := r.api.FetchDay(ctx, subject, day)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			logx.WithContext(ctx).Errorf("history: api lookup %s failed: %v", key, err)
		case len(bars) > 0:
			return r.remember(ctx, key, newDataPoint(subject, day, bars, SourceAPI)), nil
		}
	}
	return nil, ErrNotFound
}

func (r *Resolver) remember(ctx context.Context, key string, dp *DataPoint) *DataPoint {
	r.cache.Set(ctx, cache.TierHistorical, key, dp)
	return dp
}

func newDataPoint(subject string, day time.Time, bars []ohlc.Bar, source Source) *DataPoint {
	return &DataPoint{
		Subject: subject,
		Date:    day,
		Bars:    bars,
		Metadata: Metadata{
			Source:         source,
			IsHistorical:   true,
			HistoricalDate: day.Format(time.DateOnly),
		},
	}
}

// ResolveRange resolves every calendar day in [start, end] with bounded
// concurrency, drops days without data and returns the rest by ascending
// date.
func (r *Resolver) ResolveRange(ctx context.Context, subject string, start, end time.Time) ([]*DataPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	first, last := ohlc.StartOfDay(start), ohlc.StartOfDay(end)
	if last.Before(first) {
		return []*DataPoint{}, nil
	}

	return mr.MapReduce(func(source chan<- time.Time) {
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			source <- day
		}
	}, func(day time.Time, writer mr.Writer[*DataPoint], cancel func(error)) {
		if err := ctx.Err(); err != nil {
			cancel(err)
			return
		}
		dp, err := r.Resolve(ctx, subject, day)
		switch {
		case err == nil:
			writer.Write(dp)
		case errors.Is(err, ErrNotFound):
		case ctx.Err() != nil:
			cancel(ctx.Err())
		default:
			logx.WithContext(ctx).Errorf("history: resolve %s %s: %v", subject, day.Format(time.DateOnly), err)
		}
	}, func(pipe <-chan *DataPoint, writer mr.Writer[[]*DataPoint], cancel func(error)) {
		points := make([]*DataPoint, 0)
		for dp := range pipe {
			points = append(points, dp)
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
		writer.Write(points)
	}, mr.WithContext(ctx), mr.WithWorkers(r.concurrency))
}
