package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/pathvar"

	"github.com/najdi123/currency-sub003/internal/cache"
	"github.com/najdi123/currency-sub003/internal/marketdata"
	"github.com/najdi123/currency-sub003/internal/svc"
	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/market"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	logx.Disable()
	m.Run()
}

func newServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	fc := clock.NewFake(now)
	store, err := cache.NewMemoryStore("handler-test", time.Hour)
	require.NoError(t, err)
	provider := market.ProviderFunc(func(ctx context.Context, category market.Category) ([]market.Observation, error) {
		if category == market.CategoryCoin {
			return nil, errors.New("upstream down")
		}
		return []market.Observation{{
			ItemCode:  "gold18",
			Category:  category,
			Price:     decimal.RequireFromString("3100000"),
			Timestamp: now,
		}}, nil
	})
	orch, err := marketdata.New(marketdata.Deps{
		Provider: provider,
		Cache:    cache.NewTiered(store, cache.DefaultTTLSet(), cache.WithClock(fc)),
		Clock:    fc,
	})
	require.NoError(t, err)
	return &svc.ServiceContext{Clock: fc, Orchestrator: orch}
}

func serve(h http.HandlerFunc, target string, vars map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	if vars != nil {
		req = pathvar.WithVars(req, vars)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	ctx := newServiceContext(t)
	rec := serve(HealthHandler(ctx), "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
}

func TestCurrentHandler(t *testing.T) {
	ctx := newServiceContext(t)
	h := CurrentHandler(ctx)

	rec := serve(h, "/api/v1/current/gold", map[string]string{"category": "GOLD"})
	require.Equal(t, http.StatusOK, rec.Code)
	var cur marketdata.Current
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cur))
	assert.Equal(t, marketdata.SourceAPI, cur.Metadata.Source)
	require.Len(t, cur.Data, 1)
	assert.Equal(t, "gold18", cur.Data[0].ItemCode)

	rec = serve(h, "/api/v1/current/stocks", map[string]string{"category": "stocks"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, "/api/v1/current/coin", map[string]string{"category": "coin"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHistoryHandlers(t *testing.T) {
	ctx := newServiceContext(t)

	rec := serve(HistoryHandler(ctx), "/api/v1/history/gold?days=3", map[string]string{"category": "gold"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(HistoryHandler(ctx), "/api/v1/history/gold?days=0", map[string]string{"category": "gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(HistoricalHandler(ctx), "/api/v1/historical/gold/2025-01-09",
		map[string]string{"category": "gold", "date": "2025-01-09"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(HistoricalHandler(ctx), "/api/v1/historical/gold/yesterday",
		map[string]string{"category": "gold", "date": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOHLCHandler(t *testing.T) {
	ctx := newServiceContext(t)
	rec := serve(CurrentHandler(ctx), "/api/v1/current/gold", map[string]string{"category": "gold"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(OHLCHandler(ctx), "/api/v1/ohlc/gold18", map[string]string{"subject": "gold18"})
	require.Equal(t, http.StatusOK, rec.Code)
	var bars []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bars))
	require.Len(t, bars, 1)
	assert.Equal(t, "day", bars[0]["period"])
	assert.Equal(t, "3100000", bars[0]["close"])

	rec = serve(OHLCHandler(ctx), "/api/v1/ohlc/gold18?date=2025-01-01", map[string]string{"subject": "gold18"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(OHLCHandler(ctx), "/api/v1/ohlc/gold18?date=soon", map[string]string{"subject": "gold18"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
