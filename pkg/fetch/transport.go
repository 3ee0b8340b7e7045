package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/najdi123/currency-sub003/pkg/clock"
)

const (
	defaultMinInterval = 500 * time.Millisecond
	defaultCallTimeout = 10 * time.Second
	defaultUserAgent   = "currency-marketdata/1.0"
)

// Transport issues single rate-limited calls to one upstream. It never
// retries and never interprets the payload.
type Transport struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	minInterval time.Duration
	timeout     time.Duration
	userAgent   string
	header      http.Header
	clock       clock.Clock

	mu       sync.Mutex
	lastCall time.Time
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) TransportOption {
	return func(t *Transport) {
		if hc != nil {
			t.httpClient = hc
		}
	}
}

// WithMinInterval sets the minimum spacing between two calls.
func WithMinInterval(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d >= 0 {
			t.minInterval = d
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithClock injects the clock used to stamp calls.
func WithClock(c clock.Clock) TransportOption {
	return func(t *Transport) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) TransportOption {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// WithHeader adds a static header to every call (API keys and the like).
func WithHeader(key, value string) TransportOption {
	return func(t *Transport) {
		if key != "" {
			t.header.Set(key, value)
		}
	}
}

// NewTransport constructs a transport for the upstream rooted at baseURL.
func NewTransport(baseURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		minInterval: defaultMinInterval,
		timeout:     defaultCallTimeout,
		userAgent:   defaultUserAgent,
		header:      make(http.Header),
		clock:       clock.Real(),
	}
	for _, opt := range opts {
		opt(t)
	}
	limit := rate.Inf
	if t.minInterval > 0 {
		limit = rate.Every(t.minInterval)
	}
	t.limiter = rate.NewLimiter(limit, 1)
	return t
}

// LastCall returns when the most recent call was issued.
func (t *Transport) LastCall() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCall
}

// Fetch performs one GET against endpoint with the given query parameters.
func (t *Transport) Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The limiter refuses up front when the deadline falls before the
		// next slot; waiting and retrying cannot succeed within ctx.
		return nil, &Error{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", context.DeadlineExceeded, err)}
	}

	t.mu.Lock()
	t.lastCall = t.clock.Now()
	t.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, t.resolve(endpoint, params), nil)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	for key, values := range t.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, &Error{Endpoint: endpoint, Retryable: true, Err: ErrTimeout}
		}
		return nil, &Error{Endpoint: endpoint, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			return nil, &Error{Endpoint: endpoint, Retryable: true, Err: ErrTimeout}
		}
		return nil, &Error{Endpoint: endpoint, Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Retryable: true, Body: string(body), Err: ErrRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (t *Transport) resolve(endpoint string, params url.Values) string {
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = t.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	if len(params) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + params.Encode()
}
