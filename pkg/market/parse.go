package market

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
)

var separatorReplacer = strings.NewReplacer(
	",", "",
	"_", "",
	" ", "",
	"٬", "", // Arabic thousands separator
	" ", "",
)

// ParsePrice parses a decimal price, tolerating thousands separators.
// Unparsable or empty input yields zero and ok=false.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	clean := separatorReplacer.Replace(strings.TrimSpace(raw))
	if clean == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseDecimalField parses one field of an upstream record. A malformed value
// is logged and replaced by zero so the rest of the record survives.
func ParseDecimalField(ctx context.Context, item, field, raw string) decimal.Decimal {
	d, ok := ParsePrice(raw)
	if !ok {
		logx.WithContext(ctx).Infof("market: warning: unparsable %s=%q for item=%s, using 0", field, raw, item)
	}
	return d
}
