package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridianhq/meridian/pkg/api"
	"github.com/meridianhq/meridian/pkg/async"
	"github.com/meridianhq/meridian/pkg/audit"
	"github.com/meridianhq/meridian/pkg/auth"
	"github.com/meridianhq/meridian/pkg/billing"
	"github.com/meridianhq/meridian/pkg/config"
	"github.com/meridianhq/meridian/pkg/customers"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/middleware"
	"github.com/meridianhq/meridian/pkg/observability"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/storage"
	"github.com/meridianhq/meridian/pkg/tenant"

	"github.com/sirupsen/logrus"
)

const (
	roleCacheSize = 1024
	roleCacheTTL  = 5 * time.Minute
)

func main() {
	log := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, storage.PoolConfig{
		URL:          cfg.DB.URL,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		PingTimeout:  cfg.DB.QueryTimeout,
	})
	if err != nil {
		log.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		log.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Identity resolver: OIDC when an issuer is configured, HS256 sessions
	// otherwise. Config validation guarantees one of the two is set.
	var resolver auth.Resolver
	if cfg.Auth.OIDCIssuerURL != "" {
		resolver, err = auth.NewOIDCResolver(ctx, cfg.Auth.OIDCIssuerURL, cfg.Auth.OIDCClientID)
		if err != nil {
			log.WithError(err).Error("failed to initialize OIDC resolver")
			os.Exit(1)
		}
		log.WithField("issuer", cfg.Auth.OIDCIssuerURL).Info("using OIDC identity resolver")
	} else {
		resolver = auth.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		log.Info("using JWT session identity resolver")
	}

	// Rate limiter: shared Redis counter when configured, per-process
	// token bucket otherwise.
	var limiter middleware.Limiter
	rateCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Rate.RequestsPerWindow,
		WindowDuration:    cfg.Rate.WindowDuration,
		BurstSize:         cfg.Rate.BurstSize,
	}
	if cfg.Redis.URL != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		limiter = middleware.NewDistributedRateLimiter(client, rateCfg, "meridian")
		log.WithField("addr", cfg.Redis.URL).Info("using distributed rate limiter")
	} else {
		limiter = middleware.NewRateLimiter(rateCfg)
		log.Info("using in-process rate limiter")
	}

	auditLog := logrus.New()
	auditLog.SetFormatter(&logrus.JSONFormatter{})
	// The pool outlives the signal context so queued audit writes drain
	// during shutdown.
	auditPool := async.NewWorkerPool(context.Background(), 2, "audit", cfg.DB.QueryTimeout, log)
	recorder := audit.NewRecorder(audit.NewAsyncSink(audit.NewPostgresSink(db), auditPool), auditLog, func() {
		metrics.AuditWriteFailures.Inc()
	})

	roleStore := rbac.NewPostgresRoleStore(db,
		rbac.WithCache(roleCacheSize, roleCacheTTL),
		rbac.WithCacheMetrics(
			func() { metrics.PermissionCacheHits.Inc() },
			func() { metrics.PermissionCacheMiss.Inc() },
		),
	)

	var templates *rbac.TemplateCatalog
	if cfg.Roles.TemplatesFile != "" {
		templates, err = rbac.LoadTemplates(cfg.Roles.TemplatesFile)
		if err != nil {
			log.WithError(err).Error("failed to load role templates")
			os.Exit(1)
		}
		log.WithField("file", cfg.Roles.TemplatesFile).Info("loaded role templates")
	}

	users := auth.NewUserStore(db)
	repo := tenant.NewPostgresRepository(db)
	tenants := tenant.NewService(db, repo, recorder)
	tenantResolver := tenant.NewResolver(repo, cfg.Tenant.RequireExplicitCompany)
	engine := rbac.NewEngine(roleStore)

	g := guard.New(resolver, users, tenantResolver, engine, limiter, metrics, log).
		WithResolveTimeout(cfg.Auth.ResolveTimeout)

	server := api.NewServer(api.ServerDeps{
		DB:             db,
		Guard:          g,
		Tenants:        tenants,
		Customers:      customers.NewService(db, recorder),
		Roles:          roleStore,
		Billing:        billing.NewService(db, recorder),
		Templates:      templates,
		WebhookSecrets: cfg.Webhooks.Secrets,
		Metrics:        metrics,
		Log:            log,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes and scrapers
	healthMux := http.NewServeMux()
	healthMux.Handle("/metrics", observability.Handler(registry))
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", apiServer.Addr).Info("starting API server")
		errCh <- apiServer.ListenAndServe()
	}()
	go func() {
		log.WithField("addr", healthServer.Addr).Info("starting health server")
		errCh <- healthServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API server shutdown incomplete")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health server shutdown incomplete")
	}
	if err := auditPool.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.WithError(err).Warn("audit writes dropped during shutdown")
	}
	log.Info("shutdown complete")
}
