package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"PricePulse/internal/domain/repository"
	"PricePulse/internal/handler/api"
	"PricePulse/internal/middleware"
	"PricePulse/internal/service/ratelimit"
	"PricePulse/internal/usecase"
	pkgch "PricePulse/pkg/clickhouse"
	"PricePulse/pkg/config"
	xhttp "PricePulse/pkg/http"
	pkgkafka "PricePulse/pkg/kafka"
	applogger "PricePulse/pkg/logger"
)

const limiterSweepEvery = time.Minute

// Components are the long-running parts the App starts and stops.
// Everything except Handler and Store may be nil.
type Components struct {
	Handler    xhttp.Handler
	Limiter    *ratelimit.Limiter
	Hub        *api.DealHub
	Pipeline   *middleware.IngestPipeline
	Consumer   *pkgkafka.Consumer
	Prices     pkgkafka.MessageHandler
	Sweep      *usecase.DealSweep
	Publisher  repository.AlertPublisher
	Store      repository.PriceStore
	ClickHouse *pkgch.Client
	Redis      *redis.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done or one of
// them fails, then shuts everything down.
func (a *App) RunContext(ctx context.Context) error {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	if a.c.Limiter != nil {
		opts = append(opts, xhttp.WithRateLimiter(a.c.Limiter))
	}
	a.httpServer = xhttp.NewServer(a.c.Handler, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if a.c.Hub != nil {
		g.Go(func() error { return a.c.Hub.Run(gctx) })
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(gctx)
	}
	if a.c.Limiter != nil {
		g.Go(func() error {
			t := time.NewTicker(limiterSweepEvery)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					if n := a.c.Limiter.Sweep(); n > 0 {
						a.l.Debug("rate limiter swept", applogger.Int("dropped", n))
					}
				}
			}
		})
	}

	if a.c.Consumer != nil && a.c.Prices != nil {
		a.c.Consumer.RegisterHandler(a.c.Prices)
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return a.abort(cancel, g, fmt.Errorf("kafka consumer: %w", err))
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Prices.Topic()))
	}

	if a.c.Sweep != nil && a.cfg.Sweep.Enabled {
		if err := a.c.Sweep.Start(gctx, a.cfg.Sweep.Schedule); err != nil {
			return a.abort(cancel, g, err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return a.abort(cancel, g, err)
	}
	a.l.Info("pricepulse started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("store", a.cfg.Store.Type),
		applogger.Bool("kafka", a.c.Consumer != nil),
		applogger.Bool("sweep", a.cfg.Sweep.Enabled),
	)

	<-gctx.Done()
	if ctx.Err() != nil {
		a.l.Info("shutdown signal received")
	}
	a.shutdown()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// abort stops whatever was already started and returns cause.
func (a *App) abort(cancel context.CancelFunc, g *errgroup.Group, cause error) error {
	cancel()
	a.shutdown()
	_ = g.Wait()
	return cause
}

// shutdown gracefully stops all services. Errors are logged, not returned.
func (a *App) shutdown() {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Sweep != nil && a.cfg.Sweep.Enabled {
		if err := a.c.Sweep.Stop(ctx); err != nil {
			a.l.Warn("deal sweep stop error", applogger.Error(err))
		}
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}
	if a.c.Publisher != nil {
		if err := a.c.Publisher.Close(); err != nil {
			a.l.Warn("alert publisher close error", applogger.Error(err))
		}
	}
	if a.c.Store != nil {
		if err := a.c.Store.Close(); err != nil {
			a.l.Warn("price store close error", applogger.Error(err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.l.Warn("redis close error", applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
}
