package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redisgate/redisgate/internal/config"
	"github.com/redisgate/redisgate/internal/dispatch"
	"github.com/redisgate/redisgate/internal/gate"
	"github.com/redisgate/redisgate/internal/httpserver"
	"github.com/redisgate/redisgate/internal/locator"
	"github.com/redisgate/redisgate/internal/platform"
	"github.com/redisgate/redisgate/internal/pool"
	"github.com/redisgate/redisgate/internal/registry"
	"github.com/redisgate/redisgate/internal/telemetry"
	"github.com/redisgate/redisgate/internal/token"
)

// Run is the main application entry point: it reads config, connects to
// infrastructure, and serves the request-execution core's HTTP surface
// until ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting redisgate", "listen", cfg.ListenAddr(), "in_cluster", cfg.InCluster())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	reg := registry.NewPostgresRegistry(db)

	jwtSecret := cfg.RequireJWTSecret(token.GenerateDevSecret)
	tokenSvc, err := token.NewService(jwtSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	loc, err := newLocator(cfg, reg)
	if err != nil {
		return fmt.Errorf("creating service locator: %w", err)
	}

	poolMgr := pool.NewManager(loc, reg, cfg.PoolMaxSize, cfg.PoolWaitTimeout())
	defer func() {
		if err := poolMgr.Close(); err != nil {
			logger.Error("closing pool manager", "error", err)
		}
	}()

	stopRefresh := startRefreshLoop(ctx, poolMgr, logger)
	defer stopRefresh()

	authGate := gate.New(tokenSvc, reg)
	handler := dispatch.NewHandler(authGate, poolMgr, cfg.CommandTimeout(), logger)

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)
	srv := httpserver.NewServer(cfg, logger, db, metricsReg, handler)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newLocator selects the in-cluster Kubernetes locator or the static
// development locator, following the resolution policy's deployment-mode
// switch.
func newLocator(cfg *config.Config, reg registry.Registry) (locator.Locator, error) {
	if !cfg.InCluster() {
		static := locator.NewStaticLocator(reg, cfg.RedisStaticPorts, cfg.RedisDefaultPassword)
		return locator.New(false, reg, nil, static), nil
	}

	k8s, err := locator.NewK8sLocator(reg, cfg.K8sNamespace, cfg.K8sDiscoveryTimeout(), cfg.RedisDefaultPassword)
	if err != nil {
		return nil, err
	}
	return locator.New(true, reg, k8s, nil), nil
}

// startRefreshLoop runs the pool manager's background discovery sweep
// periodically, evicting pools for instances that have disappeared from
// the registry. Returns a stop function that cancels the loop and blocks
// until it exits.
func startRefreshLoop(ctx context.Context, mgr *pool.Manager, logger *slog.Logger) func() {
	const interval = 30 * time.Second
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := mgr.Refresh(ctx); err != nil {
					logger.Warn("pool refresh sweep failed", "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
