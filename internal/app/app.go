// Package app wires configuration, upstream clients, the graph store, the
// handler pipeline, the bus consumer and the admin HTTP server together.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/provenance-updater/internal/bus"
	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/data/db"
	"github.com/yungbote/provenance-updater/internal/data/graph"
	"github.com/yungbote/provenance-updater/internal/handlers"
	httpx "github.com/yungbote/provenance-updater/internal/http"
	httpH "github.com/yungbote/provenance-updater/internal/http/handlers"
	"github.com/yungbote/provenance-updater/internal/ledger"
	"github.com/yungbote/provenance-updater/internal/observability"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/reconcile"
	"github.com/yungbote/provenance-updater/internal/router"
)

type Options struct {
	// InMemoryGraph replaces Neo4j with a process-local store.
	InMemoryGraph bool
	// WithLedger opens the failure ledger when one is configured.
	WithLedger bool
}

type App struct {
	Cfg     *config.Config
	Log     *logger.Logger
	Metrics *observability.Metrics

	Clients Clients
	Store   graph.Store
	Router  *router.Router
	DB      *gorm.DB
	Ledger  ledger.Ledger

	shutdownOTel func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	metrics := observability.NewMetrics()
	a := &App{
		Cfg:          cfg,
		Log:          log,
		Metrics:      metrics,
		shutdownOTel: observability.InitOTel(ctx, log, cfg.Env, cfg.OTel),
	}

	clients, err := wireClients(ctx, cfg, !opts.InMemoryGraph, log, metrics)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Clients = clients

	if opts.InMemoryGraph {
		a.Store = graph.NewMemStore()
	} else {
		a.Store = graph.NewNeo4jStore(clients.Neo4j, log)
	}

	a.Router = router.New(log, metrics)
	if err := handlers.Register(a.Router, handlers.Deps{
		Engine:   reconcile.New(a.Store, log),
		Builds:   clients.Builds,
		Errata:   clients.Errata,
		Topics:   cfg.Topics,
		Identity: cfg.Identity,
		Log:      log,
	}); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("register handlers: %w", err)
	}

	if opts.WithLedger && cfg.Ledger.Driver != "" {
		gdb, err := db.Open(ctx, cfg.Ledger, log)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		a.DB = gdb
		a.Ledger = ledger.New(gdb, log)
	}
	return a, nil
}

// EnsureSchema creates the graph uniqueness constraints.
func (a *App) EnsureSchema(ctx context.Context) error {
	s, ok := a.Store.(*graph.Neo4jStore)
	if !ok {
		return fmt.Errorf("schema: graph store is not neo4j")
	}
	return s.EnsureSchema(ctx)
}

// CheckSchema fails when the graph is missing uniqueness constraints. Stores
// other than Neo4j enforce one node per key themselves.
func (a *App) CheckSchema(ctx context.Context) error {
	s, ok := a.Store.(*graph.Neo4jStore)
	if !ok {
		return nil
	}
	missing, err := s.MissingConstraints(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema: missing graph constraints %v; run the schema command or serve with --ensure-schema", missing)
	}
	return nil
}

// Serve consumes the bus and serves the admin API until ctx is done or one of
// them fails.
func (a *App) Serve(ctx context.Context) error {
	consumer := bus.New(a.Cfg.NATS, a.Router, a.Ledger, a.Log)
	if err := consumer.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			a.Log.Warn("nats drain failed", "error", err)
		}
	}()

	server := a.server(consumer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	return g.Wait()
}

func (a *App) server(consumer *bus.Consumer) *httpx.Server {
	checks := map[string]httpH.Check{
		"graph": a.Store.Ping,
		"nats":  pingCheck(consumer.Ping),
	}
	if a.DB != nil {
		checks["ledger"] = func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return wireServer(a.Cfg, a.Log, a.Metrics, wireHandlers(a.Log, checks, a.Ledger))
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Clients.Close(ctx)
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
