package svc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/internal/config"
	"github.com/najdi123/currency-sub003/internal/marketdata"
	"github.com/najdi123/currency-sub003/internal/persistence/ohlcstore"
	"github.com/najdi123/currency-sub003/pkg/clock"
	"github.com/najdi123/currency-sub003/pkg/market"
	"github.com/najdi123/currency-sub003/pkg/ohlc"
)

func TestMain(m *testing.M) {
	logx.Disable()
	os.Setenv("NO_DOTENV", "1")
	os.Exit(m.Run())
}

func loadConfig(t *testing.T, baseURL, extra string) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "market.yaml"), []byte(`
default: primary
providers:
  primary:
    type: rest
    base_url: `+baseURL+`
    max_retries: 0
`), 0o600))
	main := filepath.Join(dir, "marketd.yaml")
	require.NoError(t, os.WriteFile(main, []byte(`
Name: marketd
Host: 127.0.0.1
Port: 8890
Market:
  File: market.yaml
`+extra), 0o600))
	cfg, err := config.Load(main)
	require.NoError(t, err)
	return *cfg
}

func TestNewServiceContextInMemory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gold", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"data":[{"code":"gold18","price":"3,100,000"}]}}`))
	}))
	defer srv.Close()

	fc := clock.NewFake(time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC))
	ctx, err := NewServiceContext(loadConfig(t, srv.URL, ""), fc)
	require.NoError(t, err)
	require.NotNil(t, ctx.Orchestrator)
	assert.IsType(t, &ohlc.MemoryStore{}, ctx.Bars)
	assert.Equal(t, 10, ctx.Tracker.ThresholdFor("fetch:gold"))
	assert.Equal(t, 5, ctx.Tracker.ThresholdFor("db:ohlc-save"))

	cur, err := ctx.Orchestrator.GetCurrent(context.Background(), market.CategoryGold)
	require.NoError(t, err)
	assert.Equal(t, marketdata.SourceAPI, cur.Metadata.Source)
	require.Len(t, cur.Data, 1)
	assert.Equal(t, "3100000", cur.Data[0].Price.String())
	assert.Equal(t, 2, ctx.Aggregator.Len())
}

func TestNewServiceContextSQLite(t *testing.T) {
	cfg := loadConfig(t, "http://127.0.0.1:1", "SQLite:\n  Path: ohlc.db\n")
	ctx, err := NewServiceContext(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ohlcstore.Store{}, ctx.Bars)
	assert.FileExists(t, filepath.Join(cfg.BaseDir(), "ohlc.db"))
}

func TestNewServiceContextRequiresMarket(t *testing.T) {
	_, err := NewServiceContext(config.Config{}, nil)
	assert.Error(t, err)
}
