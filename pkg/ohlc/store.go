package ohlc

import (
	"context"
	"sync"
	"time"
)

// Query selects stored bars. Subject matches an item code or a category;
// PeriodStart must fall in [From, To).
type Query struct {
	Subject string
	Period  Period
	From    time.Time
	To      time.Time
}

// Store persists closed bars.
type Store interface {
	SaveBars(ctx context.Context, bars []Bar) error
	Bars(ctx context.Context, q Query) ([]Bar, error)
}

// DayBars returns the daily bars of subject for the calendar day of day.
func DayBars(ctx context.Context, s Store, subject string, day time.Time) ([]Bar, error) {
	start := StartOfDay(day)
	return s.Bars(ctx, Query{Subject: subject, Period: Day, From: start, To: start.AddDate(0, 0, 1)})
}

// MemoryStore keeps bars in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	bars map[barKey]Bar
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bars: make(map[barKey]Bar)}
}

// SaveBars upserts bars by (item, period, start).
func (m *MemoryStore) SaveBars(ctx context.Context, bars []Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.bars[barKey{item: b.Item, period: b.Period, start: b.PeriodStart.UTC()}] = b
	}
	return nil
}

// Bars implements Store.
func (m *MemoryStore) Bars(ctx context.Context, q Query) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Bar, 0)
	for _, b := range m.bars {
		if !b.Matches(q.Subject) || (q.Period != "" && b.Period != q.Period) {
			continue
		}
		if b.PeriodStart.Before(q.From) || !b.PeriodStart.Before(q.To) {
			continue
		}
		out = append(out, b)
	}
	m.mu.RUnlock()
	sortBars(out)
	return out, nil
}
