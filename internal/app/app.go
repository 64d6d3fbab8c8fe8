// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/AndeLabs/FlowClicker/internal/config"
	"github.com/AndeLabs/FlowClicker/internal/server"
	"github.com/AndeLabs/FlowClicker/pkg/audit"
	"github.com/AndeLabs/FlowClicker/pkg/engine"
	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/leaderboard"
	"github.com/AndeLabs/FlowClicker/pkg/policy"
	"github.com/AndeLabs/FlowClicker/pkg/reward"
	"github.com/AndeLabs/FlowClicker/pkg/store"

	"github.com/sirupsen/logrus"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	httpServer        *server.HTTPServer
	metricsServer     *server.MetricsServer
	store             store.Store
	auditLog          *audit.Log
	ranker            *leaderboard.Ranker
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes a new application instance. Components are
// initialized in dependency order: policy, storage, global state, audit
// trail, engine, servers, telemetry.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy from %s: %w", cfg.PolicyPath, err)
	}
	logrus.Infof("loaded game policy from %s", cfg.PolicyPath)

	if err := app.initStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// The decay schedule anchors on the stored genesis; InitGlobalState
	// is a no-op when the counters already exist.
	genesis := cfg.GenesisTimestamp
	if genesis == 0 {
		genesis = uint64(time.Now().Unix())
	}
	if err := app.store.InitGlobalState(ctx, game.NewGlobalState(genesis)); err != nil {
		return nil, fmt.Errorf("failed to init global state: %w", err)
	}

	if cfg.AuditPath != "" {
		app.auditLog, err = audit.Open(cfg.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log at %s: %w", cfg.AuditPath, err)
		}
		logrus.Infof("audit trail at %s", cfg.AuditPath)
	} else {
		logrus.Warn("audit trail disabled (AUDIT_PATH is empty)")
	}

	calc, err := reward.NewCalculator(pol)
	if err != nil {
		return nil, fmt.Errorf("failed to build reward calculator: %w", err)
	}

	agg := leaderboard.NewAggregator(app.store, calc)
	app.ranker = leaderboard.NewRanker(app.store, time.Duration(cfg.RankIntervalSeconds)*time.Second)

	metrics := engine.NewMetrics()
	eng, err := engine.New(app.store, pol, agg, app.auditLog, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, eng, app.store, agg, cfg.HTTPRateLimit, cfg.HTTPRateBurst)
	if err := app.httpServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}
	feed := server.NewWSFeed(agg, time.Duration(cfg.WSPushIntervalSeconds)*time.Second)
	app.httpServer.RegisterWebSocket("/ws", feed)

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics", metrics.Collectors()...)
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.OtelServiceName, cfg.Environment, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	logrus.Info("application initialized successfully")

	return app, nil
}

// initStore opens the configured storage backend.
func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case "postgres":
		s, err := store.OpenPostgres(ctx, a.cfg.PostgresDSN, 5)
		if err != nil {
			return err
		}
		a.store = s
		logrus.Info("postgres store initialized")
	default:
		client, err := store.InitRedisClient(ctx,
			a.cfg.RedisHost+":"+a.cfg.RedisPort,
			a.cfg.RedisPassword,
			uint64(a.cfg.RedisMaxRetries),
		)
		if err != nil {
			return err
		}
		a.store = store.NewRedisStore(client)
		logrus.Info("redis store initialized")
	}
	return nil
}
