package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/najdi123/currency-sub003/internal/config"
)

func TestConfigSummaryLines(t *testing.T) {
	assert.Equal(t, []string{"Configuration: <nil>"}, ConfigSummaryLines(nil))

	cfg := &config.Config{Env: "prod"}
	cfg.Host, cfg.Port = "0.0.0.0", 8890
	cfg.SQLite.Path = "data/ohlc.db"
	cfg.Redis.Host = "redis:6379"
	cfg.Breaker.WindowSeconds = 60
	cfg.Warmup.Enabled = true
	cfg.Warmup.Spec = "@every 4m"
	cfg.Market.File = "etc/market.yaml"

	lines := ConfigSummaryLines(cfg)
	assert.Contains(t, lines, "Environment: prod")
	assert.Contains(t, lines, "Listen: 0.0.0.0:8890")
	assert.Contains(t, lines, "OHLC store: sqlite data/ohlc.db")
	assert.Contains(t, lines, "Cache: redis redis:6379")
	assert.Contains(t, lines, "History API: not configured (concurrency 0)")
	assert.Contains(t, lines, "Market config: etc/market.yaml")

	cfg.Postgres.DSN = "postgres://localhost/marketdata"
	cfg.Warmup.Enabled = false
	lines = ConfigSummaryLines(cfg)
	assert.Contains(t, lines, "OHLC store: postgres")
	assert.Contains(t, lines, "Warmup: disabled")
}
