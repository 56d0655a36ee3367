// Package app wires the strategy engine, scheduler, and operator API
// together and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexbot/internal/config"
	"github.com/alanyoungcy/dexbot/internal/platform/jupiter"
	"github.com/alanyoungcy/dexbot/internal/server"
	"github.com/alanyoungcy/dexbot/internal/server/handler"
	"github.com/alanyoungcy/dexbot/internal/server/ws"
	"github.com/alanyoungcy/dexbot/internal/strategy"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, builds the engine
// and scheduler, starts the HTTP API, and blocks until the context is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("chain", a.cfg.Market.Chain),
		slog.Bool("dry_run", a.cfg.Strategy.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Runtime parameters: config base plus persisted overrides.
	params := strategy.NewParamSet(a.cfg.BaseParams(), deps.ParamStore, a.logger)
	if err := params.Load(ctx); err != nil {
		return fmt.Errorf("app: load params: %w", err)
	}

	// WebSocket hub carries the live event feed.
	hub := ws.NewHub(a.logger)

	// The settlement asset can never become a position target.
	excluded := append([]string{jupiter.USDCMint}, a.cfg.Market.ExcludedTokens...)

	// Daily-loss accounting day boundary follows the configured zone.
	loc, err := a.cfg.AccountingLocation()
	if err != nil {
		return fmt.Errorf("app: resolve timezone: %w", err)
	}

	guard := strategy.NewGuard(deps.PositionStore, deps.EventStore, loc)
	pipeline := strategy.NewPipeline(
		deps.Market,
		deps.Safety,
		strategy.HeuristicScorer{},
		deps.PositionStore,
		deps.PenaltyStore,
		a.cfg.Market.Chain,
		excluded,
		a.logger,
	)
	executor := strategy.NewExecutor(deps.Venue, deps.PriceCache, a.logger)

	engine := strategy.NewEngine(strategy.EngineConfig{
		Positions: deps.PositionStore,
		Events:    deps.EventStore,
		Penalties: deps.PenaltyStore,
		Guard:     guard,
		Pipeline:  pipeline,
		Executor:  executor,
		Market:    deps.Market,
		Params:    params,
		Chain:     a.cfg.Market.Chain,
		Notifier:  deps.Notifier,
		Broadcast: hub.Broadcast,
	}, a.logger)

	scheduler := strategy.NewScheduler(engine, params, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(engine, scheduler, params, a.logger),
		Scheduler: handler.NewSchedulerHandler(scheduler, ctx, a.logger),
		Positions: handler.NewPositionHandler(deps.PositionStore, engine, a.logger),
		Events:    handler.NewEventHandler(deps.EventStore, a.logger),
		Params:    handler.NewParamHandler(params, a.logger),
		Reset:     handler.NewResetHandler(engine, deps.Archiver, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	if a.cfg.Scheduler.AutoStart {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("app: start scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("app: server: %w", err)
		}
		return nil
	})

	// Shutdown sequencing: stop the cycles first so no new work starts, then
	// drain in-flight HTTP requests.
	g.Go(func() error {
		<-gctx.Done()

		scheduler.Stop()
		scheduler.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
