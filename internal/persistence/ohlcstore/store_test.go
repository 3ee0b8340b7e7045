package ohlcstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/pkg/market"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

func TestMain(m *testing.M) {
	logx.Disable()
	m.Run()
}

var day = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func bar(item string, cat market.Category, period ohlc.Period, at time.Time, open, high, low, close string, n int) ohlc.Bar {
	start, end := period.Bounds(at)
	return ohlc.Bar{
		Item: item, Category: cat, Period: period,
		PeriodStart: start, PeriodEnd: end,
		Open:        decimal.RequireFromString(open),
		High:        decimal.RequireFromString(high),
		Low:         decimal.RequireFromString(low),
		Close:       decimal.RequireFromString(close),
		SampleCount: n,
	}
}

func exerciseStore(t *testing.T, store *Store) {
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations are idempotent")

	bars := []ohlc.Bar{
		bar("btc", market.CategoryCrypto, ohlc.Day, day, "94000.123456789", "96000", "93000", "95000.5", 10),
		bar("eth", market.CategoryCrypto, ohlc.Day, day, "3300", "3400", "3200", "3350", 8),
		bar("btc", market.CategoryCrypto, ohlc.Hour, day.Add(9*time.Hour), "94000", "94100", "93900", "94050", 3),
		bar("btc", market.CategoryCrypto, ohlc.Day, day.AddDate(0, 0, 1), "95000", "95000", "95000", "95000", 1),
	}
	require.NoError(t, store.SaveBars(ctx, bars))

	got, err := ohlc.DayBars(ctx, store, "btc", day.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "btc", got[0].Item)
	assert.Equal(t, market.CategoryCrypto, got[0].Category)
	assert.Equal(t, day, got[0].PeriodStart)
	assert.Equal(t, day.AddDate(0, 0, 1), got[0].PeriodEnd)
	assert.True(t, got[0].Open.Equal(decimal.RequireFromString("94000.123456789")))
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("95000.5")))
	assert.Equal(t, 10, got[0].SampleCount)

	got, err = ohlc.DayBars(ctx, store, "crypto", day)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = store.Bars(ctx, ohlc.Query{Subject: "btc", From: day, To: day.AddDate(0, 0, 2)})
	require.NoError(t, err)
	require.Len(t, got, 3, "empty period matches every period")

	updated := bars[0]
	updated.Close = decimal.RequireFromString("95100")
	updated.SampleCount = 11
	require.NoError(t, store.SaveBars(ctx, []ohlc.Bar{bars[0], updated}))
	got, err = ohlc.DayBars(ctx, store, "btc", day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(decimal.NewFromInt(95100)))
	assert.Equal(t, 11, got[0].SampleCount)

	got, err = ohlc.DayBars(ctx, store, "gold", day)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, store.SaveBars(ctx, nil))
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "ohlc.db"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("OHLCSTORE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OHLCSTORE_POSTGRES_DSN not set")
	}
	store, err := OpenPostgres(dsn, 4, 2)
	require.NoError(t, err)
	_, err = store.conn.ExecCtx(context.Background(), "DROP TABLE IF EXISTS public.ohlc_bars")
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(" ")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ? OR c = ?", rebind("a = $1 AND b = $2 OR c = $10"))
}

func TestDedupeKeepsLast(t *testing.T) {
	a := bar("btc", market.CategoryCrypto, ohlc.Day, day, "1", "1", "1", "1", 1)
	b := a
	b.SampleCount = 2
	c := bar("eth", market.CategoryCrypto, ohlc.Day, day, "1", "1", "1", "1", 1)
	out := dedupe([]ohlc.Bar{a, c, b})
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].SampleCount)
	assert.Equal(t, "eth", out[1].Item)
}
