package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/internal/config"
	"github.com/najdi123/currency-sub003/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Listen: %s:%d", cfg.Host, cfg.Port),
		fmt.Sprintf("OHLC store: %s", barStore(cfg)),
		fmt.Sprintf("Cache: %s", cacheStore(cfg)),
		fmt.Sprintf("TTL (fresh/stale/ohlc/historical): %ds / %ds / %ds / %ds",
			cfg.TTL.Fresh, cfg.TTL.Stale, cfg.TTL.OHLC, cfg.TTL.Historical),
		fmt.Sprintf("Breaker: threshold=%d fetch=%d warn=%d window=%s",
			cfg.Breaker.Threshold, cfg.Breaker.FetchThreshold, cfg.Breaker.WarnAt, cfg.BreakerWindow()),
		fmt.Sprintf("History API: %s (concurrency %d)", presence(strings.TrimSpace(cfg.History.APIBaseURL) != ""), cfg.History.Concurrency),
		warmupLine(cfg),
		sectionLine("Market config", cfg.Market),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func barStore(cfg *config.Config) string {
	switch {
	case strings.TrimSpace(cfg.Postgres.DSN) != "":
		return "postgres"
	case strings.TrimSpace(cfg.SQLite.Path) != "":
		return "sqlite " + cfg.SQLite.Path
	default:
		return "memory"
	}
}

func cacheStore(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Redis.Host) != "" {
		return "redis " + cfg.Redis.Host
	}
	return "memory"
}

func warmupLine(cfg *config.Config) string {
	if !cfg.Warmup.Enabled {
		return "Warmup: disabled"
	}
	return fmt.Sprintf("Warmup: refresh %q, flush %q", cfg.Warmup.Spec, cfg.Warmup.FlushSpec)
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
