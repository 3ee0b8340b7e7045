package history

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/najdi123/currency-sub003/pkg/fetch"
	"github.com/najdi123/currency-sub003/pkg/market"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

// HistoryEndpoint is the path of the internal history API.
const HistoryEndpoint = "/history"

// APISource reads daily bars from the internal history API.
type APISource struct {
	fetcher *fetch.Fetcher
}

// NewAPISource wraps a retrying fetcher pointed at the history API.
func NewAPISource(fetcher *fetch.Fetcher) *APISource {
	return &APISource{fetcher: fetcher}
}

// DialAPI builds the transport and fetcher for baseURL. An empty baseURL
// yields nil, which the resolver treats as "no API configured".
func DialAPI(baseURL string, timeout time.Duration) *APISource {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	opts := []fetch.TransportOption{fetch.WithUserAgent("marketd/history")}
	if timeout > 0 {
		opts = append(opts, fetch.WithTimeout(timeout))
	}
	return NewAPISource(fetch.NewFetcher(fetch.NewTransport(baseURL, opts...), fetch.DefaultRetryConfig()))
}

// FetchDay implements Fetcher. A nil source has no data.
func (a *APISource) FetchDay(ctx context.Context, subject string, day time.Time) ([]ohlc.Bar, error) {
	if a == nil {
		return nil, ErrNotFound
	}
	day = ohlc.StartOfDay(day)
	body, err := a.fetcher.FetchWithRetry(ctx, HistoryEndpoint, url.Values{
		"subject": {subject},
		"date":    {day.Format(time.DateOnly)},
	})
	if err != nil {
		if fetch.StatusCode(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history api %s: %w", subject, err)
	}

	raw, err := fetch.Unwrap(body)
	if err != nil {
		return nil, fmt.Errorf("history api %s: %w", subject, err)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return nil, fmt.Errorf("history api %s: %w", subject, fetch.ErrMalformed)
	}

	var bars []ohlc.Bar
	root.ForEach(func(_, rec gjson.Result) bool {
		if b, ok := decodeBar(subject, day, rec); ok {
			bars = append(bars, b)
		}
		return true
	})
	if len(bars) == 0 {
		return nil, ErrNotFound
	}
	return bars, nil
}

// decodeBar reads one daily bar. close is required; missing open/high/low
// fall back to it and high/low are widened so they bracket open and close.
func decodeBar(subject string, day time.Time, rec gjson.Result) (ohlc.Bar, bool) {
	closePrice, ok := price(rec, "close", "price", "value")
	if !ok || !closePrice.IsPositive() {
		return ohlc.Bar{}, false
	}
	openPrice := orDefault(rec, closePrice, "open")
	high := decimal.Max(orDefault(rec, closePrice, "high"), openPrice, closePrice)
	low := decimal.Min(orDefault(rec, closePrice, "low"), openPrice, closePrice)

	item := strings.ToLower(firstString(rec, "item", "code", "symbol"))
	category := market.Category(strings.ToLower(firstString(rec, "category")))
	if item == "" {
		item = subject
	}
	if category == "" {
		if c, err := market.ParseCategory(subject); err == nil {
			category = c
		}
	}

	start, end := ohlc.Day.Bounds(day)
	count := int(rec.Get("sample_count").Int())
	if count <= 0 {
		count = 1
	}
	return ohlc.Bar{
		Item:        item,
		Category:    category,
		Period:      ohlc.Day,
		PeriodStart: start,
		PeriodEnd:   end,
		Open:        openPrice,
		High:        high,
		Low:         low,
		Close:       closePrice,
		SampleCount: count,
	}, true
}

func price(rec gjson.Result, fields ...string) (decimal.Decimal, bool) {
	for _, f := range fields {
		v := rec.Get(f)
		if !v.Exists() {
			continue
		}
		raw := v.String()
		if v.Type == gjson.Number {
			raw = v.Raw
		}
		return market.ParsePrice(raw)
	}
	return decimal.Zero, false
}

func orDefault(rec gjson.Result, fallback decimal.Decimal, field string) decimal.Decimal {
	if d, ok := price(rec, field); ok && d.IsPositive() {
		return d
	}
	return fallback
}

func firstString(rec gjson.Result, fields ...string) string {
	for _, f := range fields {
		if v := rec.Get(f); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

var _ Fetcher = (*APISource)(nil)
