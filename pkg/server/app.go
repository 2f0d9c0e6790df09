package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/service/ratelimit"
	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/usecase"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/cache"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/config"
	xhttp "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/http"
	pkgkafka "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/kafka"
	applogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

// Deps are the long-lived components the application starts and stops.
// Collector, Consumer and Producer are optional.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Runner    *usecase.CycleRunner
	Collector *usecase.StreamCollector
	Consumer  *pkgkafka.Consumer
	Producer  *pkgkafka.Producer
	Audit     repository.AuditSink
	Redis     *cache.RedisCache
	Handler   xhttp.Handler
	Limiter   *ratelimit.Limiter
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	httpServer *xhttp.Server
}

func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = applogger.Nop()
	}
	return &App{Deps: d}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := a.Logger
	cfg := a.Config

	if cfg.Kafka.ErrorLogs.Enabled && a.Producer != nil {
		l.AttachCollector(&applogger.CollectorConfig{
			FlushInterval:  cfg.Kafka.ErrorLogs.FlushInterval,
			MaxUnique:      cfg.Kafka.ErrorLogs.MaxUnique,
			Topic:          cfg.Kafka.LogsTopic,
			PublishTimeout: 5 * time.Second,
			Publisher:      a.Producer,
		})
	}

	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			l.Warn("trade stream unavailable, using REST bars only", applogger.Error(err))
		}
	}

	if a.Consumer != nil {
		if err := a.Consumer.Start(ctx); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
		}
	}

	if err := a.Runner.Start(ctx); err != nil {
		return err
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	}
	if a.Limiter != nil {
		opts = append(opts, xhttp.WithMiddleware(ratelimit.Middleware(a.Limiter)))
	}
	a.httpServer = xhttp.NewServer(a.Handler, opts...)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	l.Info("admission service started",
		applogger.String("env", cfg.Environment),
		applogger.String("backend", cfg.Backend.Type),
		applogger.Int("watchlist", len(cfg.Admission.Watchlist)))

	<-ctx.Done()
	l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops producers of work first, then the sinks they write to.
func (a *App) shutdown() error {
	l := a.Logger
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	a.Runner.Stop()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	l.DetachCollector()

	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			l.Warn("audit sink close error", applogger.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return errors.Join(errs...)
}
