// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the authgate HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Resolve the session signing secret.
//  4. Open the account store (PostgreSQL + migrations, or in-memory).
//  5. Open the rate-limit backend (Redis, or in-memory).
//  6. Wire services, guards and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/authgate/internal/admission"
	"github.com/taibuivan/authgate/internal/api"
	"github.com/taibuivan/authgate/internal/platform/config"
	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/migration"
	pgstore "github.com/taibuivan/authgate/internal/platform/postgres"
	redisstore "github.com/taibuivan/authgate/internal/platform/redis"
	"github.com/taibuivan/authgate/internal/platform/sec"
	"github.com/taibuivan/authgate/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	log := newLogger(slog.LevelInfo)
	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("admission_enforced", cfg.EnforceAdmission()),
	)

	// Root context: cancelled on shutdown so background sweepers stop.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Catch misconfiguration quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. Session Signing ────────────────────────────────────────────────
	secret, err := signingSecret(cfg, log)
	must(log, err, "resolve signing secret")

	codec, err := sec.NewTokenCodec(secret, constants.AuthIssuer)
	must(log, err, "initialize token codec")

	cookie := sec.NewSessionCookie(cfg.IsProduction(), cfg.CookieSameSite, codec.TTL())

	// ── 4. Account Store ──────────────────────────────────────────────────
	var (
		accounts auth.AccountRepository
		health   api.HealthDependencies
	)

	if cfg.DatabaseURL != "" {
		pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing_postgres_pool")
			pool.Close()
		}()

		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

		accounts = auth.NewAccountRepository(pool)
		health.CheckDatabase = func(ctx context.Context) error { return pgstore.Ping(ctx, pool) }
	} else {
		log.Warn("account_store_in_memory", slog.String("reason", "DATABASE_URL is empty"))
		accounts = auth.NewMemoryAccountRepository()
	}

	// ── 5. Rate-Limit Backend ─────────────────────────────────────────────
	var limiter admission.Limiter

	if cfg.RedisURL != "" {
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing_redis_client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis_close_error", slog.Any("error", cerr))
			}
		}()

		limiter = admission.NewRedisLimiter(rdb, constants.RedisPrefixRateLimit)
		health.CheckCache = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	} else {
		log.Warn("rate_limiter_in_memory", slog.String("reason", "REDIS_URL is empty"))
		limiter = admission.NewMemoryLimiter(rootCtx, cfg.RateLimitWindow)
	}

	// ── 6. Domain Wiring ──────────────────────────────────────────────────
	policy, err := admission.PolicyFromConfig(cfg)
	must(log, err, "build admission policy")

	gate := admission.NewGate(policy, admission.NewHeuristicClassifier(), limiter,
		admission.WithEnforcement(cfg.EnforceAdmission()),
	)

	proxies, err := middleware.NewProxyTrust(cfg.TrustedProxies)
	must(log, err, "parse trusted proxies")

	authService := auth.NewService(accounts, sec.NewHasher(cfg.BcryptCost))
	liveness, readiness := api.NewHealthHandlers(health, log)

	server := api.NewServer(cfg, log, api.Guards{
		Verifier:  codec,
		Session:   cookie,
		Flood:     middleware.NewFloodGuard(rootCtx, cfg.FloodGuardRPS, cfg.FloodGuardBurst),
		Admission: gate,
		Proxies:   proxies,
	}, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService, codec, cookie),
	})

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))

	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName))
	slog.SetDefault(log)
	return log
}

// signingSecret returns JWT_SECRET, or a random per-process key outside
// production. Sessions signed with a random key do not survive a restart.
func signingSecret(cfg *config.Config, log *slog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("JWT_SECRET is required in production")
	}

	log.Warn("jwt_secret_generated",
		slog.String("reason", "JWT_SECRET is empty"),
		slog.String("effect", "sessions are invalidated on restart"),
	)
	return sec.RandomSecret(constants.DevSecretBytes)
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
