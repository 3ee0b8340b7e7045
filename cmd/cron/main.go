// Command cron runs the cache warmer and bar flusher without the HTTP
// server. It only makes sense against shared Redis and SQL backends.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/najdi123/currency-sub003/internal/cli"
	"github.com/najdi123/currency-sub003/internal/config"
	"github.com/najdi123/currency-sub003/internal/svc"
	"github.com/najdi123/currency-sub003/internal/warmer"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

var configFile = flag.String("f", "etc/marketd.yaml", "the config file")

func main() {
	flag.Parse()

	appCfg, err := config.Load(*configFile)
	logx.Must(err)
	logx.MustSetup(appCfg.Log)
	defer logx.Close()

	cli.LogConfigSummary(appCfg)
	if appCfg.Redis.Host == "" {
		logx.Info("[main] warning: no redis configured, warmed entries stay in this process")
	}

	categories, err := appCfg.WarmupCategories()
	logx.Must(err)

	svcCtx := svc.MustNewServiceContext(*appCfg)
	w, err := warmer.New(svcCtx.Orchestrator, warmer.Config{
		RefreshSpec: appCfg.Warmup.Spec,
		FlushSpec:   appCfg.Warmup.FlushSpec,
		Categories:  categories,
	})
	logx.Must(err)

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.Start()
	logx.Info("[main] cron warmer started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logx.Info("[main] shutdown signal received, stopping schedules...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	w.Stop(shutdownCtx)
	w.Flush(shutdownCtx)

	logx.Info("[main] cron warmer stopped")
}
