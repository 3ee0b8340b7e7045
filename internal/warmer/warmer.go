// Package warmer keeps the fresh tier populated and flushes closed OHLC bars
// on cron schedules.
package warmer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"github.com/najdi123/currency-sub003/internal/marketdata"
	"github.com/najdi123/currency-sub003/pkg/market"
)

// DefaultTimeout bounds one refresh or flush run.
const DefaultTimeout = 30 * time.Second

// Target is the part of the orchestrator the warmer drives.
type Target interface {
	Refresh(ctx context.Context, category market.Category) (*marketdata.Current, error)
	FlushBars(ctx context.Context) (int, error)
}

// Config selects what runs when.
type Config struct {
	RefreshSpec string
	FlushSpec   string
	Categories  []market.Category
	Timeout     time.Duration
}

type Warmer struct {
	target Target
	cfg    Config
	cron   *cron.Cron
}

// Parser accepts five-field specs and descriptors such as "@every 4m".
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(target Target, cfg Config) (*Warmer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = market.Categories()
	}
	w := &Warmer{
		target: target,
		cfg:    cfg,
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
	}
	if _, err := w.cron.AddFunc(cfg.RefreshSpec, func() { w.RefreshAll(context.Background()) }); err != nil {
		return nil, fmt.Errorf("warmer: refresh schedule %q: %w", cfg.RefreshSpec, err)
	}
	if _, err := w.cron.AddFunc(cfg.FlushSpec, func() { w.Flush(context.Background()) }); err != nil {
		return nil, fmt.Errorf("warmer: flush schedule %q: %w", cfg.FlushSpec, err)
	}
	return w, nil
}

// Start runs one refresh in the background and starts the schedules.
func (w *Warmer) Start() {
	threading.GoSafe(func() { w.RefreshAll(context.Background()) })
	w.cron.Start()
	logx.Infof("warmer: started, refresh %q flush %q for %v", w.cfg.RefreshSpec, w.cfg.FlushSpec, w.cfg.Categories)
}

// Stop halts the schedules and waits for running jobs, or for ctx.
func (w *Warmer) Stop(ctx context.Context) {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		logx.Errorf("warmer: stop: %v", ctx.Err())
	}
}

// RefreshAll refreshes every configured category concurrently and returns
// how many succeeded, stale answers included.
func (w *Warmer) RefreshAll(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	var ok atomic.Int64
	group := threading.NewRoutineGroup()
	for _, category := range w.cfg.Categories {
		group.RunSafe(func() {
			start := time.Now()
			cur, err := w.target.Refresh(ctx, category)
			if err != nil {
				logx.WithContext(ctx).Errorf("warmer: refresh %s: %v", category, err)
				return
			}
			ok.Add(1)
			logx.WithContext(ctx).Infof("warmer: refreshed %s source=%s items=%d in %s",
				category, cur.Metadata.Source, len(cur.Data), time.Since(start))
		})
	}
	group.Wait()
	return int(ok.Load())
}

// Flush persists closed bars.
func (w *Warmer) Flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	if _, err := w.target.FlushBars(ctx); err != nil {
		logx.WithContext(ctx).Errorf("warmer: flush: %v", err)
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logx.Debugf("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logx.Errorf("cron: %s %v: %v", msg, keysAndValues, err)
}
