package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/rest"

	"github.com/najdi123/currency-sub003/internal/cli"
	"github.com/najdi123/currency-sub003/internal/config"
	"github.com/najdi123/currency-sub003/internal/handler"
	"github.com/najdi123/currency-sub003/internal/svc"
	"github.com/najdi123/currency-sub003/internal/warmer"
)

var configFile = flag.String("f", "etc/marketd.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()

	cli.LogConfigSummary(cfg)

	ctx := svc.MustNewServiceContext(*cfg)
	handler.RegisterHandlers(server, ctx)

	if cfg.Warmup.Enabled {
		categories, err := cfg.WarmupCategories()
		logx.Must(err)
		w, err := warmer.New(ctx.Orchestrator, warmer.Config{
			RefreshSpec: cfg.Warmup.Spec,
			FlushSpec:   cfg.Warmup.FlushSpec,
			Categories:  categories,
		})
		logx.Must(err)
		w.Start()
		proc.AddShutdownListener(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			w.Stop(stopCtx)
			w.Flush(stopCtx)
		})
	}

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
}
