// Package cli holds the wiring and interactive loop behind the flowengine
// command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/botaas/flowengine"
	"github.com/botaas/flowengine/internal/config"
	"github.com/botaas/flowengine/pkg/adapters/classifier"
	"github.com/botaas/flowengine/pkg/adapters/logsink"
	"github.com/botaas/flowengine/pkg/adapters/memory"
	"github.com/botaas/flowengine/pkg/adapters/postgres"
	redisadapter "github.com/botaas/flowengine/pkg/adapters/redis"
	"github.com/botaas/flowengine/pkg/adapters/sqlite"
	"github.com/botaas/flowengine/pkg/adapters/webhook"
	"github.com/botaas/flowengine/pkg/observability"
	"github.com/botaas/flowengine/pkg/persistence/middleware"
	"github.com/botaas/flowengine/pkg/ports"
)

// App is a fully wired engine with its stores.
type App struct {
	Engine   *flowengine.Engine
	Flows    ports.FlowStore
	Sessions ports.SessionStore
	Registry *prometheus.Registry
	Sink     *logsink.Sink

	closers []func() error
}

// Close releases every backing connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Build opens the stores named by cfg and wires an engine over them.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Registry: prometheus.NewRegistry(),
		Sink:     logsink.New(logger),
	}

	var (
		sqliteDB *sqlite.DB
		pgDB     *postgres.DB
	)
	openSQLite := func() (*sqlite.DB, error) {
		if sqliteDB == nil {
			db, err := sqlite.Open(sqlite.Config{DSN: cfg.Storage.DSN})
			if err != nil {
				return nil, err
			}
			sqliteDB = db
			app.closers = append(app.closers, db.Close)
		}
		return sqliteDB, nil
	}
	openPostgres := func() (*postgres.DB, error) {
		if pgDB == nil {
			db, err := postgres.Open(ctx, postgres.Config{URL: cfg.Storage.DSN})
			if err != nil {
				return nil, err
			}
			pgDB = db
			app.closers = append(app.closers, func() error { db.Close(); return nil })
		}
		return pgDB, nil
	}

	switch cfg.Storage.Driver {
	case "memory":
		app.Flows = memory.NewFlowStore()
	case "sqlite":
		db, err := openSQLite()
		if err != nil {
			return nil, err
		}
		app.Flows = db.Flows()
	case "postgres":
		db, err := openPostgres()
		if err != nil {
			return nil, err
		}
		app.Flows = db.Flows()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	var locker ports.DistributedLocker
	switch backend := cfg.SessionBackend(); backend {
	case "memory":
		app.Sessions = memory.NewStore()
	case "sqlite":
		db, err := openSQLite()
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Sessions = db.Sessions()
	case "postgres":
		db, err := openPostgres()
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Sessions = db.Sessions()
	case "redis":
		store := redisadapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisadapter.WithPrefix(cfg.Redis.Prefix),
			redisadapter.WithTTL(cfg.Sessions.TTL),
		)
		app.closers = append(app.closers, store.Close)
		app.Sessions = store
		if cfg.Redis.Lock {
			locker = redisadapter.NewLocker(store.Client(), cfg.Redis.Prefix)
		}
	default:
		_ = app.Close()
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}

	if cfg.Sessions.EncryptionKey != "" {
		keys, err := middleware.ParseKeys(cfg.Sessions.EncryptionKey, cfg.Sessions.PreviousKeys...)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("session encryption: %w", err)
		}
		seal, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("session encryption: %w", err)
		}
		app.Sessions = middleware.Chain(app.Sessions, seal)
	}

	metrics := observability.NewMetrics(app.Registry)
	opts := []flowengine.Option{
		flowengine.WithLogger(logger),
		flowengine.WithLifecycleHooks(observability.Combine(observability.LogHooks(logger), metrics.Hooks())),
		flowengine.WithMaxHops(cfg.Engine.MaxHops),
		flowengine.WithFallbackMessage(cfg.Engine.FallbackMessage),
		flowengine.WithErrorMessage(cfg.Engine.ErrorMessage),
		flowengine.WithMaxInputSize(cfg.Engine.MaxInputSize),
		flowengine.WithGraphCache(cfg.Engine.CacheSize, cfg.Engine.CacheTTL),
		flowengine.WithRegexTimeout(cfg.Engine.RegexTimeout),
		flowengine.WithSessionTimeout(cfg.Sessions.IdleTimeout),
		flowengine.WithLockTimeout(cfg.Sessions.LockTimeout),
		flowengine.WithLockTTL(cfg.Sessions.LockTTL),
		flowengine.WithWebhookClient(webhook.New(
			webhook.WithTimeout(cfg.Webhook.Timeout),
			webhook.WithRetries(cfg.Webhook.Retries, 200*time.Millisecond),
			webhook.WithUserAgent(cfg.Webhook.UserAgent),
		)),
		flowengine.WithChatAdmin(app.Sink),
		flowengine.WithMailer(app.Sink),
		flowengine.WithOwnerNotifier(app.Sink),
		flowengine.WithEventSink(app.Sink),
	}
	if cfg.Classifier.Endpoint != "" {
		opts = append(opts, flowengine.WithClassifier(
			classifier.New(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, cfg.Classifier.Timeout)))
	}
	if locker != nil {
		opts = append(opts, flowengine.WithLocker(locker))
	}

	app.Engine = flowengine.New(app.Flows, app.Sessions, opts...)
	return app, nil
}
