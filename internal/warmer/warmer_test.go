package warmer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/internal/marketdata"
	"github.com/najdi123/currency-sub003/pkg/market"
)

func TestMain(m *testing.M) {
	logx.Disable()
	m.Run()
}

type fakeTarget struct {
	mu        sync.Mutex
	refreshed []market.Category
	flushes   int
	fail      map[market.Category]bool
	flushErr  error
}

func (f *fakeTarget) Refresh(ctx context.Context, category market.Category) (*marketdata.Current, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, category)
	if f.fail[category] {
		return nil, errors.New("upstream down")
	}
	return &marketdata.Current{Metadata: marketdata.Metadata{Source: marketdata.SourceAPI}}, nil
}

func (f *fakeTarget) FlushBars(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return 0, f.flushErr
}

func (f *fakeTarget) snapshot() ([]market.Category, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]market.Category(nil), f.refreshed...), f.flushes
}

func TestRefreshAll(t *testing.T) {
	target := &fakeTarget{fail: map[market.Category]bool{market.CategoryCoin: true}}
	w, err := New(target, Config{RefreshSpec: "@every 1h", FlushSpec: "@every 1h"})
	require.NoError(t, err)

	assert.Equal(t, len(market.Categories())-1, w.RefreshAll(context.Background()))
	refreshed, _ := target.snapshot()
	assert.ElementsMatch(t, market.Categories(), refreshed)
}

func TestRefreshConfiguredCategories(t *testing.T) {
	target := &fakeTarget{}
	w, err := New(target, Config{
		RefreshSpec: "*/5 * * * *",
		FlushSpec:   "@hourly",
		Categories:  []market.Category{market.CategoryGold},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, w.RefreshAll(context.Background()))
	refreshed, _ := target.snapshot()
	assert.Equal(t, []market.Category{market.CategoryGold}, refreshed)
}

func TestFlush(t *testing.T) {
	target := &fakeTarget{flushErr: errors.New("db down")}
	w, err := New(target, Config{RefreshSpec: "@every 1h", FlushSpec: "@every 1h"})
	require.NoError(t, err)
	w.Flush(context.Background())
	_, flushes := target.snapshot()
	assert.Equal(t, 1, flushes)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := New(&fakeTarget{}, Config{RefreshSpec: "whenever", FlushSpec: "@every 1h"})
	assert.Error(t, err)
	_, err = New(&fakeTarget{}, Config{RefreshSpec: "@every 1h", FlushSpec: ""})
	assert.Error(t, err)
}

func TestStartRunsInitialRefresh(t *testing.T) {
	target := &fakeTarget{}
	w, err := New(target, Config{
		RefreshSpec: "@every 1h",
		FlushSpec:   "@every 1h",
		Categories:  []market.Category{market.CategoryCrypto},
	})
	require.NoError(t, err)
	w.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		w.Stop(ctx)
	}()

	assert.Eventually(t, func() bool {
		refreshed, _ := target.snapshot()
		return len(refreshed) == 1
	}, time.Second, 10*time.Millisecond)
}
