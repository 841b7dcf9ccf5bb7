// Package app собирает зависимости процесса по конфигу.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/config"
	"github.com/Spok95/subgate/internal/domain/credentials"
	"github.com/Spok95/subgate/internal/infra/auth"
	"github.com/Spok95/subgate/internal/infra/cache"
	"github.com/Spok95/subgate/internal/infra/events"
	httpx "github.com/Spok95/subgate/internal/infra/http"
	"github.com/Spok95/subgate/internal/infra/metrics"
	"github.com/Spok95/subgate/internal/jobs"
	"github.com/Spok95/subgate/internal/lifecycle"
	"github.com/Spok95/subgate/internal/storage"
	"github.com/Spok95/subgate/internal/storage/postgres"
	"github.com/Spok95/subgate/internal/storage/sqlite"
)

type Container struct {
	Config   config.Config
	Log      *slog.Logger
	Location *time.Location

	Store    storage.Store
	Codes    *cache.Codes // nil, если redis.url пуст или Redis недоступен в dev
	Events   *events.AccessPublisher
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Access    *access.Service
	Lifecycle *lifecycle.Service
	Issuer    *auth.Issuer
}

func (c *Container) dev() bool { return c.Config.App.Env == "dev" }

// OpenStore подключает хранилище из storage.driver и накатывает миграции.
func OpenStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		if err := postgres.Migrate(ctx, cfg.Postgres.DSN); err != nil {
			return nil, err
		}
		return postgres.Connect(ctx, cfg.Postgres.DSN)
	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// NewContainer поднимает хранилище, кэш кодов, публикацию событий и сервисы.
// В dev недоступные Redis и RabbitMQ не мешают запуску.
func NewContainer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Container, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	c := &Container{Config: cfg, Log: log, Location: loc}

	c.Store, err = OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", "driver", cfg.Storage.Driver)

	if err := c.connectCache(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.connectEvents(); err != nil {
		c.Close()
		return nil, err
	}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	opts := []access.Option{access.WithRecorder(c.Metrics), access.WithPublisher(c.Events)}
	if c.Codes != nil {
		opts = append(opts, access.WithCodeCache(c.Codes))
	}
	c.Access = access.NewService(c.Store, access.NewEngine(loc), log, opts...)
	c.Lifecycle = lifecycle.NewService(c.Store, credentials.New(cfg.Credentials.MaxAttempts), loc, log)
	c.Issuer = auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	return c, nil
}

func (c *Container) connectCache(ctx context.Context) error {
	if c.Config.Redis.URL == "" {
		return nil
	}
	codes, err := cache.Connect(c.Config.Redis.URL, c.Config.Redis.CodeTTL, c.Log)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = codes.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = codes.Close()
		}
	}
	if err != nil {
		if !c.dev() {
			return fmt.Errorf("connect redis: %w", err)
		}
		c.Log.Warn("redis not available, code cache disabled", "err", err)
		return nil
	}
	c.Codes = codes
	c.Log.Info("connected to redis")
	return nil
}

func (c *Container) connectEvents() error {
	if c.Config.RabbitMQ.URL == "" {
		c.Events = events.NewAccessPublisher(events.NewNoop(c.Log))
		return nil
	}
	mq, err := events.DialRabbitMQ(c.Config.RabbitMQ.URL, c.Config.RabbitMQ.Exchange, c.Log)
	if err != nil {
		if !c.dev() {
			return err
		}
		c.Log.Warn("rabbitmq not available, using noop publisher", "err", err)
		c.Events = events.NewAccessPublisher(events.NewNoop(c.Log))
		return nil
	}
	c.Events = events.NewAccessPublisher(mq)
	return nil
}

// Handler: HTTP API терминалов вместе с /metrics.
func (c *Container) Handler() http.Handler {
	d := httpx.Deps{
		Access:    c.Access,
		Lifecycle: c.Lifecycle,
		Issuer:    c.Issuer,
		Log:       c.Log,
		Metrics:   c.Metrics,
	}
	if c.Config.Metrics.Enabled {
		d.Gatherer = c.Registry
	}
	return httpx.NewRouter(d)
}

func (c *Container) Scheduler() (*jobs.Scheduler, error) {
	return jobs.New(c.Config.Jobs.ExpirySweep, c.Location, c.Lifecycle, c.Metrics, c.Log)
}

func (c *Container) Close() {
	var errs []error
	if c.Events != nil {
		errs = append(errs, c.Events.Close())
	}
	if c.Codes != nil {
		errs = append(errs, c.Codes.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		c.Log.Warn("error closing container", "err", err)
	}
}
