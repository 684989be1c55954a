package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
	"github.com/platinummonkey/warden/pkg/tenants"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Warden exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	otelProviders, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
		MaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("database", func(context.Context) error { return conns.Close() })

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(ctx, conns.Primary()); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	if err := conns.VerifyRowSecurity(ctx); err != nil {
		logger.WithError(err).Error("Refusing to start: row-level security would not apply")
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if rdb, err = postgres.NewRedisClient(cfg.Redis); err != nil {
			return err
		}
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return rdb.Close() })
	}

	iso := postgres.NewIsolator(conns, postgres.IsolatorConfig{
		HierarchyRead:       cfg.Tenancy.HierarchyRead,
		SerializableRetries: cfg.Tenancy.SerializableRetries,
	}, metrics, logger)

	tenantService := tenants.NewPostgresService(iso, tenants.Config{InvitationTTL: cfg.Tenancy.InvitationTTL}, logger)
	keyStore := auth.NewPostgresAPIKeyStore(iso, cfg.Auth.APIKeyPrefix)
	sessionTokens := auth.NewSessionTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.SessionTTL)

	var selections session.SelectionStore
	if rdb != nil {
		selections = session.NewRedisSelectionStore(rdb, cfg.Auth.SessionTTL)
	} else {
		selections = session.NewMemorySelectionStore(0, cfg.Auth.SessionTTL)
		logger.Warn("Redis is not configured; tenant selections are kept in process memory")
	}
	resolver := session.NewResolver(tenantService, tenantService, session.NewPostgresPlatformAdmins(iso), selections, metrics, logger)

	emitter, err := newAuditEmitter(cfg.Audit, iso, metrics, logger)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("audit emitter", emitter.Close)

	rateLimit, localLimiters := newRateLimiting(cfg.RateLimit, rdb, logger)

	jobs, err := scheduleJobs(cfg.Tenancy, tenantService, localLimiters, logger)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("jobs", func(ctx context.Context) error {
		select {
		case <-jobs.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	server := api.NewServer(api.Deps{
		Tenants:       tenantService,
		APIKeys:       keyStore,
		Authenticator: auth.NewAuthenticator(sessionTokens, keyStore, cfg.Auth.APIKeyPrefix),
		Resolver:      resolver,
		AuditStore:    audit.NewStore(iso),
		Emitter:       emitter,
		RateLimit:     rateLimit,
		Metrics:       metrics,
		Logger:        logger,
	})

	handler := httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)(server)
	server.Router().Use(observability.HTTPMetricsMiddleware(metrics))

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(handler, "warden-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(version, conns.Primary(), rdb)
	health.AddCheck("audit", emitter.Healthy, false)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("api server", apiServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	conns.StartHealthCheckRoutine(gctx, 30*time.Second, metrics)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting Warden API server")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newAuditEmitter writes every record to the audit_records table and, when
// enabled, to a JSON log stream
func newAuditEmitter(cfg config.AuditConfig, iso *postgres.Isolator, metrics *observability.Metrics, logger *observability.Logger) (*audit.AsyncEmitter, error) {
	var sink audit.Sink = audit.NewDBSink(iso)
	if cfg.LogStream {
		logSink, err := audit.NewFileLogSink(cfg.LogStreamPath)
		if err != nil {
			return nil, err
		}
		sink = audit.NewMultiSink(sink, logSink)
	}

	return audit.NewAsyncEmitter(sink, audit.EmitterConfig{
		BufferSize:   cfg.BufferSize,
		Workers:      cfg.Workers,
		WriteTimeout: cfg.WriteTimeout,
	}, metrics, logger), nil
}

// newRateLimiting builds the rate limit middleware. Limits are shared
// through Redis when it is configured; otherwise each process keeps its own
// buckets, which are returned so they can be swept.
func newRateLimiting(cfg config.RateLimitConfig, rdb *redis.Client, logger *observability.Logger) (*middleware.RateLimitMiddleware, []*middleware.RateLimiter) {
	if !cfg.Enabled {
		return nil, nil
	}
	userCfg, keyCfg, anonCfg := middleware.LimiterConfigs(cfg)

	if rdb != nil {
		return middleware.NewRateLimitMiddleware(
			middleware.NewDistributedRateLimiter(rdb, userCfg, ""),
			middleware.NewDistributedRateLimiter(rdb, keyCfg, ""),
			middleware.NewDistributedRateLimiter(rdb, anonCfg, ""),
			cfg.FailOpen, logger,
		), nil
	}

	local := []*middleware.RateLimiter{
		middleware.NewRateLimiter(userCfg),
		middleware.NewRateLimiter(keyCfg),
		middleware.NewRateLimiter(anonCfg),
	}
	return middleware.NewRateLimitMiddleware(local[0], local[1], local[2], cfg.FailOpen, logger), local
}
