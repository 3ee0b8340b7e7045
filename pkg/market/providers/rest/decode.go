package rest

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/fetch"
	"github.com/najdi123/currency-sub003/pkg/market"
)

var (
	codeFields  = []string{"code", "symbol", "item_code", "slug", "key", "name"}
	priceFields = []string{"price", "p", "value", "close", "last"}
	highFields  = []string{"high", "h", "max"}
	lowFields   = []string{"low", "l", "min"}
	timeFields  = []string{"timestamp", "time", "ts", "updated_at", "date"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// decodeRecords turns an unwrapped payload into observations. Arrays yield
// one record per element; an object keyed by item code yields one record per
// member. n is the number of records seen, including skipped ones.
func decodeRecords(ctx context.Context, category market.Category, raw []byte, now time.Time) (obs []market.Observation, n int, err error) {
	root := gjson.ParseBytes(raw)
	switch {
	case root.IsArray():
		root.ForEach(func(_, rec gjson.Result) bool {
			n++
			if o, ok := decodeRecord(ctx, category, "", rec, now); ok {
				obs = append(obs, o)
			}
			return true
		})
	case root.IsObject():
		root.ForEach(func(key, rec gjson.Result) bool {
			if !rec.IsObject() {
				return true
			}
			n++
			if o, ok := decodeRecord(ctx, category, key.String(), rec, now); ok {
				obs = append(obs, o)
			}
			return true
		})
	default:
		return nil, 0, fetch.ErrMalformed
	}
	return obs, n, nil
}

func decodeRecord(ctx context.Context, category market.Category, fallbackCode string, rec gjson.Result, now time.Time) (market.Observation, bool) {
	if !rec.IsObject() {
		return market.Observation{}, false
	}
	code := strings.ToLower(strings.TrimSpace(firstString(rec, codeFields)))
	if code == "" {
		code = strings.ToLower(strings.TrimSpace(fallbackCode))
	}
	if code == "" {
		logx.WithContext(ctx).Infof("rest provider: warning: skipping %s record without code: %s", category, truncate(rec.Raw))
		return market.Observation{}, false
	}

	o := market.Observation{
		ItemCode:  code,
		Category:  category,
		Price:     market.ParseDecimalField(ctx, code, "price", firstString(rec, priceFields)),
		Timestamp: parseTime(first(rec, timeFields), now),
	}
	if raw := firstString(rec, highFields); raw != "" {
		if d, ok := market.ParsePrice(raw); ok && d.IsPositive() {
			o.High = &d
		}
	}
	if raw := firstString(rec, lowFields); raw != "" {
		if d, ok := market.ParsePrice(raw); ok && d.IsPositive() {
			o.Low = &d
		}
	}
	return o, true
}

func first(rec gjson.Result, fields []string) gjson.Result {
	for _, f := range fields {
		if v := rec.Get(f); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// firstString keeps numeric literals verbatim so decimals never pass through
// float64.
func firstString(rec gjson.Result, fields []string) string {
	v := first(rec, fields)
	if v.Type == gjson.Number {
		return v.Raw
	}
	return v.String()
}

func parseTime(v gjson.Result, now time.Time) time.Time {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return now
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return now
}

func truncate(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:120] + "..."
}
