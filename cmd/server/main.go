// Package main is the entrypoint for the m365dash API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/aggregate"
	"github.com/kiranshivaraju/m365dash/internal/api"
	"github.com/kiranshivaraju/m365dash/internal/api/handler"
	mw "github.com/kiranshivaraju/m365dash/internal/api/middleware"
	"github.com/kiranshivaraju/m365dash/internal/api/response"
	"github.com/kiranshivaraju/m365dash/internal/backend"
	"github.com/kiranshivaraju/m365dash/internal/cache"
	"github.com/kiranshivaraju/m365dash/internal/config"
	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/kiranshivaraju/m365dash/internal/metrics"
	"github.com/kiranshivaraju/m365dash/internal/retry"
	"github.com/kiranshivaraju/m365dash/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"backend", cfg.Backend.BaseURL,
		"cache_backend", cfg.Cache.Backend,
		"database", cfg.Database.URL != "",
	)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional database: API keys and snapshot history
	var pgStore *store.PostgresStore
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		pgStore = store.NewPostgresStore(pool)
	}

	// 3. Cache
	c, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()
	loader := cache.NewLoader(c, cfg.Cache.TTL)

	// 4. Backend client, aggregator and dashboard controller
	client := backend.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout,
		backend.WithRetryPolicy(retryPolicy(cfg.Retry)),
		backend.WithHealthPolicy(retryPolicy(cfg.Health)),
		backend.WithRateLimit(cfg.Backend.RateLimit),
	)
	agg := aggregate.New(client,
		aggregate.WithCache(loader),
		aggregate.WithMaxConcurrency(cfg.Dashboard.MaxConcurrency),
	)
	ctrlOpts := []dashboard.Option{dashboard.WithCache(loader)}
	if pgStore != nil {
		ctrlOpts = append(ctrlOpts, dashboard.WithSnapshots(pgStore))
	}
	ctrl := dashboard.NewController(client, agg, ctrlOpts...)

	if cfg.Dashboard.RefreshInterval > 0 {
		ctrl.StartAutoRefresh(ctx, cfg.Dashboard.RefreshInterval)
		slog.Info("auto refresh enabled", "interval", cfg.Dashboard.RefreshInterval)
	}

	// 5. Build router with dependencies
	reports := handler.NewReports(ctrl, time.Now)
	deps := api.Dependencies{
		RateLimit:          mw.NewRateLimit(c, cfg.Server.RateLimitPerMinute),
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,

		HealthHandler:  healthHandler(nil, c, ctrl),
		MetricsHandler: metrics.Handler(),

		GetDashboard:     handler.NewGetDashboardHandler(ctrl),
		RefreshDashboard: handler.NewRefreshDashboardHandler(ctrl),

		ListTenants:   handler.NewListTenantsHandler(client, ctrl),
		CreateTenant:  handler.NewCreateTenantHandler(client),
		UpdateTenant:  handler.NewUpdateTenantHandler(client),
		DeleteTenant:  handler.NewDeleteTenantHandler(client),
		SyncTenant:    handler.NewSyncTenantHandler(ctrl),
		GetTenantData: handler.NewTenantDataHandler(agg),

		SnapshotReport: reports.Snapshot,
		UsersCSV:       reports.UsersCSV,
		UsersXLSX:      reports.UsersXLSX,
	}
	if pgStore != nil {
		deps.HealthHandler = healthHandler(pgStore, c, ctrl)
		deps.Auth = mw.NewAuth(pgStore)
		deps.ListHistory = handler.NewListHistoryHandler(pgStore)
		deps.GetHistory = handler.NewGetHistoryHandler(pgStore)
		deps.CreateKeyHandler = handler.NewCreateKeyHandler(pgStore)
		deps.ListKeysHandler = handler.NewListKeysHandler(pgStore)
		deps.RevokeKeyHandler = handler.NewRevokeKeyHandler(pgStore)
	}

	warnIfOpen(slog.Default(), deps)
	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newCache builds the configured cache backend and returns its close function.
func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.Cache.Backend == "redis" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		return rc, func() { rc.Close() }, nil
	}

	mc, err := cache.NewMemoryCache(cfg.Cache.MaxEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("create memory cache: %w", err)
	}
	return mc, func() {}, nil
}

// warnIfOpen logs when the API runs without authentication: every caller may
// then change tenant credentials.
func warnIfOpen(logger *slog.Logger, deps api.Dependencies) {
	if deps.Auth != nil {
		return
	}
	logger.Warn("authentication disabled: DATABASE_URL not set, tenant mutations and refresh accept any caller; history and key endpoints return 501",
		"cors_allowed_origins", deps.CORSAllowedOrigins,
	)
}

func retryPolicy(c config.RetryConfig) retry.Policy {
	return retry.Policy{MaxAttempts: c.MaxAttempts, Delay: c.Delay, Exponential: c.Exponential}
}

type pinger interface {
	Ping(ctx context.Context) error
}

type stateReader interface {
	State() dashboard.State
}

// healthHandler checks database and cache connectivity and reports the
// backend status seen by the last refresh. A nil db means no database is configured.
func healthHandler(db pinger, c cache.Cache, d stateReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"backend":  "ok",
		}

		if db == nil {
			checks["database"] = "disabled"
		} else if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		switch st := d.State(); {
		case st.Status == dashboard.StatusPending:
			checks["backend"] = "unknown"
		case !st.Connected():
			checks["backend"] = "offline"
		}

		degraded := checks["database"] == "degraded" || checks["cache"] == "degraded"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
