// Package dedup collapses concurrent identical requests into one in-flight
// operation whose outcome is shared by every caller.
package dedup

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/clock"
)

// DefaultTTL bounds how long a pending entry may be joined.
const DefaultTTL = time.Second

// PanicError is delivered to every waiter when the shared operation panics.
type PanicError struct {
	Key   string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dedup %s: operation panicked: %v", e.Key, e.Value)
}

type call[T any] struct {
	done    chan struct{}
	started time.Time
	dups    int
	val     T
	err     error
}

// Group is a registry of pending operations keyed by string.
type Group[T any] struct {
	name  string
	ttl   time.Duration
	clock clock.Clock

	mu    sync.Mutex
	calls map[string]*call[T]
}

// Option customises a Group.
type Option func(*options)

type options struct {
	ttl   time.Duration
	clock clock.Clock
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock injects the clock used to age pending entries.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewGroup returns an empty registry. The name labels the pending gauge.
func NewGroup[T any](name string, opts ...Option) *Group[T] {
	o := options{ttl: DefaultTTL, clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Group[T]{
		name:  name,
		ttl:   o.ttl,
		clock: o.clock,
		calls: make(map[string]*call[T]),
	}
}

// Do runs fn once for all concurrent callers sharing key. The shared
// operation is detached from the caller's cancellation: a caller that gives
// up gets ctx.Err() while the operation completes for everyone else. shared
// reports whether the caller joined an operation started by someone else.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (v T, shared bool, err error) {
	g.mu.Lock()
	c, ok := g.calls[key]
	if ok && g.clock.Now().Sub(c.started) > g.ttl {
		// Too old to join; the still-running call keeps its own waiters.
		ok = false
	}
	if ok {
		c.dups++
	} else {
		c = &call[T]{done: make(chan struct{}), started: g.clock.Now()}
		g.calls[key] = c
		pendingGauge.Inc(g.name)
		go g.run(context.WithoutCancel(ctx), key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, ok, c.err
	case <-ctx.Done():
		var zero T
		return zero, ok, ctx.Err()
	}
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func(context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = &PanicError{Key: key, Value: r, Stack: debug.Stack()}
			logx.WithContext(ctx).Errorf("dedup: %s panicked: %v\n%s", key, r, c.err.(*PanicError).Stack)
		}
		g.mu.Lock()
		// A newer call may have replaced an expired entry under the same key.
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		pendingGauge.Dec(g.name)
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}

// Pending returns the number of registered operations.
func (g *Group[T]) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Waiters returns how many callers joined the pending operation for key.
func (g *Group[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.dups
	}
	return 0
}
