// Package cache implements the tiered market-data cache on top of a
// key/value store with TTL support.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/clock"
)

// ErrNotFound is returned by stores for absent keys.
var ErrNotFound = errors.New("cache: not found")

// Store is the backing key/value store. go-zero's stores/cache.Cache
// satisfies it.
type Store interface {
	GetCtx(ctx context.Context, key string, val any) error
	SetWithExpireCtx(ctx context.Context, key string, val any, expire time.Duration) error
	DelCtx(ctx context.Context, keys ...string) error
	IsNotFound(err error) bool
}

// entry is what lands in the store. Expiry is judged from WrittenAt and TTL
// so it does not depend on the store's own eviction.
type entry struct {
	Payload   []byte        `json:"payload" msgpack:"payload"`
	WrittenAt time.Time     `json:"writtenAt" msgpack:"written_at"`
	TTL       time.Duration `json:"ttl" msgpack:"ttl"`
}

func (e entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.WrittenAt) > e.TTL
}

// Tiered is the fallback ladder of independent tiers. It exclusively owns
// the entries it writes.
type Tiered struct {
	store Store
	ttl   TTLSet
	clock clock.Clock
}

// Option customises a Tiered cache.
type Option func(*Tiered)

// WithClock injects the clock used for expiry.
func WithClock(c clock.Clock) Option {
	return func(t *Tiered) {
		if c != nil {
			t.clock = c
		}
	}
}

// NewTiered wraps store with the given tier TTLs.
func NewTiered(store Store, ttl TTLSet, opts ...Option) *Tiered {
	t := &Tiered{store: store, ttl: ttl, clock: clock.Real()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TTL returns the tier TTLs in effect.
func (t *Tiered) TTL() TTLSet { return t.ttl }

// Get decodes the value stored under key in tier into dst. It reports a miss
// when the entry is absent, expired, unreadable or the store fails.
func (t *Tiered) Get(ctx context.Context, tier Tier, key string, dst any) bool {
	if t == nil || t.store == nil {
		return false
	}
	storeKey := StoreKey(tier, key)
	var e entry
	if err := t.store.GetCtx(ctx, storeKey, &e); err != nil {
		if !t.store.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("cache: get key=%s err=%v", storeKey, err)
		}
		requestsTotal.Inc(string(tier), "miss")
		return false
	}
	if e.expired(t.clock.Now()) {
		requestsTotal.Inc(string(tier), "miss")
		return false
	}
	if err := msgpack.Unmarshal(e.Payload, dst); err != nil {
		logx.WithContext(ctx).Errorf("cache: decode key=%s err=%v", storeKey, err)
		requestsTotal.Inc(string(tier), "miss")
		return false
	}
	requestsTotal.Inc(string(tier), "hit")
	return true
}

// Set writes value under key in tier. The first ttlOverride, when positive,
// replaces the tier's default TTL. Failures are logged and swallowed.
func (t *Tiered) Set(ctx context.Context, tier Tier, key string, value any, ttlOverride ...time.Duration) {
	if t == nil || t.store == nil {
		return
	}
	ttl := t.ttl.Duration(tier)
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}
	if ttl <= 0 {
		return
	}
	storeKey := StoreKey(tier, key)
	payload, err := msgpack.Marshal(value)
	if err != nil {
		logx.WithContext(ctx).Errorf("cache: encode key=%s err=%v", storeKey, err)
		return
	}
	e := entry{Payload: payload, WrittenAt: t.clock.Now(), TTL: ttl}
	if err := t.store.SetWithExpireCtx(ctx, storeKey, e, ttl); err != nil {
		logx.WithContext(ctx).Errorf("cache: set key=%s err=%v", storeKey, err)
	}
}

// Delete removes key from tier. Failures are logged and swallowed.
func (t *Tiered) Delete(ctx context.Context, tier Tier, key string) {
	if t == nil || t.store == nil {
		return
	}
	storeKey := StoreKey(tier, key)
	if err := t.store.DelCtx(ctx, storeKey); err != nil {
		logx.WithContext(ctx).Errorf("cache: del key=%s err=%v", storeKey, err)
	}
}
