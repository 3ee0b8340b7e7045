// Package ohlc folds price observations into open/high/low/close bars and
// defines the storage contract for closed bars.
package ohlc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/najdi123/currency-sub003/pkg/market"
)

// Bar aggregates the observations of one item over one period.
// Low <= Open, Close <= High holds once a sample has been folded in.
type Bar struct {
	Item        string          `json:"item" msgpack:"item"`
	Category    market.Category `json:"category" msgpack:"category"`
	Period      Period          `json:"period" msgpack:"period"`
	PeriodStart time.Time       `json:"periodStart" msgpack:"period_start"`
	PeriodEnd   time.Time       `json:"periodEnd" msgpack:"period_end"`
	Open        decimal.Decimal `json:"open" msgpack:"open"`
	High        decimal.Decimal `json:"high" msgpack:"high"`
	Low         decimal.Decimal `json:"low" msgpack:"low"`
	Close       decimal.Decimal `json:"close" msgpack:"close"`
	SampleCount int             `json:"sampleCount" msgpack:"sample_count"`
}

// Matches reports whether subject names the bar's item or its category.
func (b Bar) Matches(subject string) bool {
	return b.Item == subject || string(b.Category) == subject
}

// ClosedAt reports whether the bar's period has ended by now.
func (b Bar) ClosedAt(now time.Time) bool {
	return !now.Before(b.PeriodEnd)
}

func (b *Bar) fold(price decimal.Decimal) {
	if b.SampleCount == 0 {
		b.Open, b.High, b.Low, b.Close = price, price, price, price
		b.SampleCount = 1
		return
	}
	if price.GreaterThan(b.High) {
		b.High = price
	}
	if price.LessThan(b.Low) {
		b.Low = price
	}
	b.Close = price
	b.SampleCount++
}
