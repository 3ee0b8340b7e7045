package svc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/internal/cache"
	"github.com/najdi123/currency-sub003/internal/config"
	"github.com/najdi123/currency-sub003/internal/history"
	"github.com/najdi123/currency-sub003/internal/marketdata"
	"github.com/najdi123/currency-sub003/internal/persistence/ohlcstore"
	"github.com/najdi123/currency-sub003/pkg/breaker"
	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/confkit"
	"github.com/najdi123/currency-sub003/pkg/dedup"
	marketpkg "github.com/najdi123/currency-sub003/pkg/market"
	_ "github.com/najdi123/currency-sub003/pkg/market/providers/rest"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

const migrateTimeout = 30 * time.Second

type ServiceContext struct {
	Config config.Config
	Clock  clock.Clock

	MarketConfig  *marketpkg.Config
	DefaultMarket marketpkg.Provider

	Cache      *cache.Tiered
	Tracker    *breaker.Tracker
	Aggregator *ohlc.Aggregator
	Bars       ohlc.Store
	History    *history.Resolver

	Orchestrator *marketdata.Orchestrator
}

// NewServiceContext builds every component once. c must come from
// config.Load so sections are hydrated.
func NewServiceContext(c config.Config, clk clock.Clock) (*ServiceContext, error) {
	clk = clock.OrReal(clk)
	svc := &ServiceContext{Config: c, Clock: clk}

	if c.Market.Value == nil {
		return nil, errors.New("svc: market config is required")
	}
	def, err := c.Market.Value.BuildDefault()
	if err != nil {
		return nil, fmt.Errorf("svc: default market provider: %w", err)
	}
	svc.MarketConfig = c.Market.Value
	svc.DefaultMarket = def

	store, err := newCacheStore(c, cache.NewTTLSet(c.TTL))
	if err != nil {
		return nil, err
	}
	svc.Cache = cache.NewTiered(store, cache.NewTTLSet(c.TTL), cache.WithClock(clk))

	svc.Tracker = breaker.NewTracker(breaker.Config{
		Threshold: c.Breaker.Threshold,
		Window:    c.BreakerWindow(),
		WarnAt:    c.Breaker.WarnAt,
		Overrides: map[string]int{breaker.FetchPrefix: c.Breaker.FetchThreshold},
	}, clk)

	if svc.Bars, err = newBarStore(c); err != nil {
		return nil, err
	}
	svc.Aggregator = ohlc.NewAggregator(ohlc.WithClock(clk))

	var api history.Fetcher
	if src := history.DialAPI(c.History.APIBaseURL, c.HistoryTimeout()); src != nil {
		api = src
	}
	svc.History = history.NewResolver(svc.Cache, svc.Bars, api,
		history.WithConcurrency(c.History.Concurrency),
		history.WithDedup(dedup.NewGroup[*history.DataPoint]("history",
			dedup.WithTTL(c.DedupTTL()), dedup.WithClock(clk))),
	)

	svc.Orchestrator, err = marketdata.New(marketdata.Deps{
		Provider:   def,
		Cache:      svc.Cache,
		Tracker:    svc.Tracker,
		Aggregator: svc.Aggregator,
		Bars:       svc.Bars,
		History:    svc.History,
		Clock:      clk,
		DedupTTL:   c.DedupTTL(),
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// MustNewServiceContext is NewServiceContext for main packages.
func MustNewServiceContext(c config.Config) *ServiceContext {
	svc, err := NewServiceContext(c, nil)
	logx.Must(err)
	return svc
}

func newCacheStore(c config.Config, ttl cache.TTLSet) (cache.Store, error) {
	if strings.TrimSpace(c.Redis.Host) != "" {
		logx.Infof("svc: cache backed by redis %s", c.Redis.Host)
		return cache.NewRedisStore(c.Redis, cache.Namespace), nil
	}
	store, err := cache.NewMemoryStore(cache.Namespace, ttl.Max())
	if err != nil {
		return nil, err
	}
	logx.Info("svc: cache backed by process memory")
	return store, nil
}

// newBarStore picks Postgres, then SQLite, then memory.
func newBarStore(c config.Config) (ohlc.Store, error) {
	var (
		store *ohlcstore.Store
		err   error
	)
	switch {
	case strings.TrimSpace(c.Postgres.DSN) != "":
		store, err = ohlcstore.OpenPostgres(c.Postgres.DSN, c.Postgres.MaxOpen, c.Postgres.MaxIdle)
	case strings.TrimSpace(c.SQLite.Path) != "":
		store, err = ohlcstore.OpenSQLite(confkit.ResolvePath(c.BaseDir(), c.SQLite.Path))
	default:
		logx.Info("svc: ohlc bars kept in memory")
		return ohlc.NewMemoryStore(), nil
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
