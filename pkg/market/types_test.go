package market

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Gold ")
	require.NoError(t, err)
	require.Equal(t, CategoryGold, c)

	_, err = ParseCategory("stocks")
	require.Error(t, err)
	require.Len(t, Categories(), 4)
}

func TestParsePrice(t *testing.T) {
	logx.Disable()
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "1,234,567.89", want: "1234567.89", ok: true},
		{raw: "61 500", want: "61500", ok: true},
		{raw: "61 500", want: "61500", ok: true},
		{raw: "۱۲", want: "0", ok: false},
		{raw: "61٬500", want: "61500", ok: true},
		{raw: "1_000", want: "1000", ok: true},
		{raw: "", want: "0", ok: false},
		{raw: "n/a", want: "0", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%q -> %s", tt.raw, got)
	}

	require.True(t, ParseDecimalField(context.Background(), "usd", "price", "oops").IsZero())
}
