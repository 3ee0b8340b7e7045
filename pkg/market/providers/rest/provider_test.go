package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/fetch"
	"github.com/najdi123/currency-sub003/pkg/market"
)

func TestMain(m *testing.M) {
	logx.Disable()
	m.Run()
}

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func noSleep() fetch.FetcherOption {
	return fetch.WithSleeper(func(context.Context, time.Duration) error { return nil })
}

func newProvider(t *testing.T, handler http.HandlerFunc, opts ...Option) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	transport := fetch.NewTransport(server.URL, fetch.WithMinInterval(0))
	fetcher := fetch.NewFetcher(transport, fetch.DefaultRetryConfig(), noSleep())
	opts = append([]Option{WithClock(clock.NewFake(now))}, opts...)
	return New("test", fetcher, opts...)
}

func TestFetchEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare array", body: `[{"code":"USD","price":"61,500"},{"code":"eur","price":66000.5}]`},
		{name: "result data", body: `{"result":{"data":[{"symbol":"usd","value":"61500"},{"symbol":"eur","value":"66000.5"}]}}`},
		{name: "result list", body: `{"result":{"list":[{"code":"usd","p":61500},{"code":"eur","p":"66,000.5"}]}}`},
		{name: "keyed object", body: `{"usd":{"price":"61500"},"eur":{"price":"66000.5"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/currency", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			obs, err := p.Fetch(context.Background(), market.CategoryCurrency)
			require.NoError(t, err)
			require.Len(t, obs, 2)

			byCode := map[string]market.Observation{}
			for _, o := range obs {
				byCode[o.ItemCode] = o
				assert.Equal(t, market.CategoryCurrency, o.Category)
				assert.Equal(t, now, o.Timestamp)
			}
			assert.True(t, byCode["usd"].Price.Equal(decimal.NewFromInt(61500)))
			assert.True(t, byCode["eur"].Price.Equal(decimal.RequireFromString("66000.5")))
		})
	}
}

func TestFetchPaging(t *testing.T) {
	var calls atomic.Int32
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "2", q.Get("limit"))
		page, _ := strconv.Atoi(q.Get("page"))
		switch page {
		case 1:
			_, _ = w.Write([]byte(`[{"code":"btc","price":"1"},{"code":"eth","price":"2"}]`))
		case 2:
			_, _ = w.Write([]byte(`[{"code":"sol","price":"3"}]`))
		default:
			t.Errorf("unexpected page %d", page)
		}
	}, WithPageSize(2), WithEndpoints(map[market.Category]string{market.CategoryCrypto: "/v1/crypto"}))

	obs, err := p.Fetch(context.Background(), market.CategoryCrypto)
	require.NoError(t, err)
	require.Len(t, obs, 3)
	require.EqualValues(t, 2, calls.Load())
}

func TestFetchMaxPages(t *testing.T) {
	var calls atomic.Int32
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"code":"a","price":"1"}]`))
	}, WithPageSize(1), WithMaxPages(3))

	obs, err := p.Fetch(context.Background(), market.CategoryCoin)
	require.NoError(t, err)
	require.Len(t, obs, 3)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchPartialOnLaterPageFailure(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`[{"code":"a","price":"1"}]`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}, WithPageSize(1))

	obs, err := p.Fetch(context.Background(), market.CategoryGold)
	require.ErrorIs(t, err, market.ErrPartial)
	require.Equal(t, http.StatusForbidden, fetch.StatusCode(err))
	require.Len(t, obs, 1)
}

func TestFetchErrors(t *testing.T) {
	t.Run("fatal status", func(t *testing.T) {
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := p.Fetch(context.Background(), market.CategoryGold)
		var failed *fetch.FetchFailedError
		require.ErrorAs(t, err, &failed)
		require.Equal(t, http.StatusUnauthorized, fetch.StatusCode(err))
	})

	t.Run("exhausted retries", func(t *testing.T) {
		var calls atomic.Int32
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := p.Fetch(context.Background(), market.CategoryGold)
		require.Error(t, err)
		require.True(t, fetch.IsRetryable(err))
		require.EqualValues(t, 4, calls.Load())
	})

	t.Run("malformed payload", func(t *testing.T) {
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		})
		_, err := p.Fetch(context.Background(), market.CategoryGold)
		require.ErrorIs(t, err, fetch.ErrMalformed)
		require.False(t, fetch.IsRetryable(err))
	})

	t.Run("scalar payload", func(t *testing.T) {
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`"ok"`))
		})
		_, err := p.Fetch(context.Background(), market.CategoryGold)
		require.ErrorIs(t, err, fetch.ErrMalformed)
	})

	t.Run("unknown category", func(t *testing.T) {
		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := p.Fetch(context.Background(), market.Category("stocks"))
		require.Error(t, err)
	})
}

func TestDecodeRecord(t *testing.T) {
	ctx := context.Background()
	body := `[
		{"code":"gold18","price":"2,600.5","high":"2650","low":"0","timestamp":1736500000},
		{"code":"coin","price":"n/a","time":"2025-01-09 10:00:00"},
		{"price":"1"},
		{"name":"Bitcoin","last":"95000.12345678901234","updated_at":1736500000123},
		"junk"
	]`
	obs, n, err := decodeRecords(ctx, market.CategoryGold, []byte(body), now)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Len(t, obs, 3)

	gold := obs[0]
	assert.True(t, gold.Price.Equal(decimal.RequireFromString("2600.5")))
	require.NotNil(t, gold.High)
	assert.True(t, gold.High.Equal(decimal.NewFromInt(2650)))
	assert.Nil(t, gold.Low, "non-positive bounds are dropped")
	assert.Equal(t, time.Unix(1736500000, 0).UTC(), gold.Timestamp)

	coin := obs[1]
	assert.True(t, coin.Price.IsZero(), "unparsable price maps to the zero sentinel")
	assert.Equal(t, time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC), coin.Timestamp)

	btc := obs[2]
	assert.Equal(t, "bitcoin", btc.ItemCode)
	assert.Equal(t, "95000.12345678901234", btc.Price.String())
	assert.Equal(t, time.UnixMilli(1736500000123).UTC(), btc.Timestamp)
}

func TestBuildFromConfig(t *testing.T) {
	cfg, err := market.LoadConfigFromReader(strings.NewReader(`
default: upstream
providers:
  upstream:
    type: rest
    base_url: https://example.invalid/api
    min_interval: 250ms
    max_retries: 0
    endpoints:
      gold: /v2/gold
`))
	require.NoError(t, err)
	provider, err := cfg.BuildDefault()
	require.NoError(t, err)
	rp, ok := provider.(*Provider)
	require.True(t, ok)
	assert.Equal(t, "upstream", rp.Name())
	assert.Equal(t, "/v2/gold", rp.endpoint(market.CategoryGold))
	assert.Equal(t, "/coin", rp.endpoint(market.CategoryCoin))
	assert.Equal(t, 0, rp.fetcher.Config().MaxRetries)

	broken, err := market.LoadConfigFromReader(strings.NewReader(`
providers:
  broken:
    type: rest
`))
	require.NoError(t, err)
	_, err = broken.BuildProviders()
	require.ErrorContains(t, err, "base_url is required")
}
