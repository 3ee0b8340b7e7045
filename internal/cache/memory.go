package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/collection"
)

// MemoryStore is an in-process Store backed by go-zero's collection.Cache.
// Values are kept msgpack-encoded so callers never share mutable state.
type MemoryStore struct {
	cache *collection.Cache
}

// NewMemoryStore builds a store whose default expiry is expire.
func NewMemoryStore(name string, expire time.Duration) (*MemoryStore, error) {
	c, err := collection.NewCache(expire, collection.WithName(name))
	if err != nil {
		return nil, fmt.Errorf("cache: new memory store: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

// GetCtx implements Store.
func (m *MemoryStore) GetCtx(ctx context.Context, key string, val any) error {
	raw, ok := m.cache.Get(key)
	if !ok {
		return ErrNotFound
	}
	data, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("cache: unexpected value type %T for key %s", raw, key)
	}
	return msgpack.Unmarshal(data, val)
}

// SetWithExpireCtx implements Store.
func (m *MemoryStore) SetWithExpireCtx(ctx context.Context, key string, val any, expire time.Duration) error {
	data, err := msgpack.Marshal(val)
	if err != nil {
		return err
	}
	m.cache.SetWithExpire(key, data, expire)
	return nil
}

// DelCtx implements Store.
func (m *MemoryStore) DelCtx(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Del(key)
	}
	return nil
}

// IsNotFound implements Store.
func (m *MemoryStore) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
