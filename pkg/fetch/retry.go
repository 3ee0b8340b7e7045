package fetch

import (
	"context"
	"net/url"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultCapDelay   = 10 * time.Second
)

// Doer performs a single upstream call.
type Doer interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// RetryConfig encapsulates exponential backoff settings.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.CapDelay <= 0 {
		c.CapDelay = defaultCapDelay
	}
	if c.CapDelay < c.BaseDelay {
		c.CapDelay = c.BaseDelay
	}
	return c
}

// DefaultRetryConfig returns 3 retries with 1s base and 10s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay, CapDelay: defaultCapDelay}
}

// Backoff returns the delay before attempt n (n >= 1):
// min(BaseDelay * 2^(n-1), CapDelay).
func (c RetryConfig) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	delay := c.BaseDelay
	for i := 1; i < n; i++ {
		if delay >= c.CapDelay {
			return c.CapDelay
		}
		delay *= 2
	}
	if delay > c.CapDelay {
		return c.CapDelay
	}
	return delay
}

// Fetcher wraps a Doer with bounded retries and exponential backoff.
type Fetcher struct {
	doer  Doer
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithSleeper replaces the backoff sleep, mostly for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) FetcherOption {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// NewFetcher constructs a retrying fetcher. Zero delays take defaults while
// MaxRetries is used as given, so 0 disables retries. Start from
// DefaultRetryConfig for the standard budget.
func NewFetcher(doer Doer, cfg RetryConfig, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		doer:  doer,
		cfg:   cfg.withDefaults(),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the effective retry settings.
func (f *Fetcher) Config() RetryConfig { return f.cfg }

// FetchWithRetry calls the upstream until it succeeds, fails with a
// non-retryable error, or exhausts the retry budget. A non-retryable failure
// is wrapped in FetchFailedError; an exhausted retryable failure is returned
// unchanged so callers see the real upstream error.
func (f *Fetcher) FetchWithRetry(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := f.doer.Fetch(ctx, endpoint, params)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) {
			return nil, &FetchFailedError{Endpoint: endpoint, Attempts: attempt + 1, Err: err}
		}
		if attempt >= f.cfg.MaxRetries {
			logx.WithContext(ctx).Errorf("fetch: %s exhausted %d retries: %v", endpoint, f.cfg.MaxRetries, err)
			return nil, err
		}

		delay := f.cfg.Backoff(attempt + 1)
		retriesTotal.Inc(endpoint)
		logx.WithContext(ctx).Infof("fetch: %s attempt %d failed, retrying in %s: %v", endpoint, attempt+1, delay, err)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
