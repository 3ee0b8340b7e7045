// Package rest adapts a paginated JSON market API to market.Provider.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/fetch"
	"github.com/najdi123/currency-sub003/pkg/market"
)

// ProviderType is the registry name used in market.yaml.
const ProviderType = "rest"

const (
	defaultPageSize = 100
	defaultMaxPages = 5
)

func init() {
	market.RegisterProvider(ProviderType, build)
}

// Provider pages through one upstream endpoint per category.
type Provider struct {
	name      string
	fetcher   *fetch.Fetcher
	endpoints map[market.Category]string
	pageSize  int
	maxPages  int
	clock     clock.Clock
}

// Option customises a Provider.
type Option func(*Provider)

// WithEndpoints overrides the path used for each category. Categories not
// listed default to "/<category>".
func WithEndpoints(endpoints map[market.Category]string) Option {
	return func(p *Provider) {
		for cat, path := range endpoints {
			if strings.TrimSpace(path) != "" {
				p.endpoints[cat] = path
			}
		}
	}
}

// WithPageSize sets the "limit" parameter.
func WithPageSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithMaxPages bounds how many pages one fetch may walk.
func WithMaxPages(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// WithClock injects the clock used to stamp records without a timestamp.
func WithClock(c clock.Clock) Option {
	return func(p *Provider) {
		if c != nil {
			p.clock = c
		}
	}
}

// New builds a provider on top of a retrying fetcher.
func New(name string, fetcher *fetch.Fetcher, opts ...Option) *Provider {
	p := &Provider{
		name:      name,
		fetcher:   fetcher,
		endpoints: make(map[market.Category]string),
		pageSize:  defaultPageSize,
		maxPages:  defaultMaxPages,
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func build(name string, cfg *market.ProviderConfig) (market.Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	topts := []fetch.TransportOption{fetch.WithUserAgent("marketd/" + name)}
	if cfg.MinInterval > 0 {
		topts = append(topts, fetch.WithMinInterval(cfg.MinInterval))
	}
	if cfg.Timeout > 0 {
		topts = append(topts, fetch.WithTimeout(cfg.Timeout))
	}
	if cfg.APIKey != "" {
		topts = append(topts, fetch.WithHeader("Authorization", "Bearer "+cfg.APIKey))
	}
	transport := fetch.NewTransport(cfg.BaseURL, topts...)

	retry := fetch.DefaultRetryConfig()
	retry.MaxRetries = cfg.Retries(retry.MaxRetries)
	if cfg.BaseDelay > 0 {
		retry.BaseDelay = cfg.BaseDelay
	}
	if cfg.CapDelay > 0 {
		retry.CapDelay = cfg.CapDelay
	}

	return New(name, fetch.NewFetcher(transport, retry),
		WithEndpoints(cfg.Endpoints),
		WithPageSize(cfg.PageSize),
		WithMaxPages(cfg.MaxPages),
	), nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.name }

func (p *Provider) endpoint(category market.Category) string {
	if path, ok := p.endpoints[category]; ok {
		return path
	}
	return "/" + string(category)
}

// Fetch implements market.Provider. Pages are requested until one comes back
// short or maxPages is reached. A failure after the first page returns what
// was collected so far together with an error wrapping market.ErrPartial.
func (p *Provider) Fetch(ctx context.Context, category market.Category) ([]market.Observation, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("rest provider %s: unknown category %q", p.name, category)
	}
	endpoint := p.endpoint(category)
	var out []market.Observation
	for page := 1; page <= p.maxPages; page++ {
		params := url.Values{
			"format": {"json"},
			"limit":  {strconv.Itoa(p.pageSize)},
			"page":   {strconv.Itoa(page)},
		}
		body, err := p.fetcher.FetchWithRetry(ctx, endpoint, params)
		if err != nil {
			if page > 1 && len(out) > 0 {
				logx.WithContext(ctx).Errorf("rest provider %s: %s page %d failed, returning %d partial records: %v",
					p.name, category, page, len(out), err)
				return out, fmt.Errorf("rest provider %s: %w: page %d: %w", p.name, market.ErrPartial, page, err)
			}
			return nil, err
		}
		records, err := fetch.Unwrap(body)
		if err != nil {
			return nil, &fetch.Error{Endpoint: endpoint, Err: err}
		}
		obs, n, err := decodeRecords(ctx, category, records, p.clock.Now())
		if err != nil {
			return nil, &fetch.Error{Endpoint: endpoint, Err: err}
		}
		out = append(out, obs...)
		if n < p.pageSize {
			break
		}
	}
	return out, nil
}
