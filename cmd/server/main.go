package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/pscheid92/serverlist/internal/adapter/httpserver"
	"github.com/pscheid92/serverlist/internal/adapter/identity"
	"github.com/pscheid92/serverlist/internal/adapter/mcstatus"
	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	"github.com/pscheid92/serverlist/internal/adapter/mongo"
	"github.com/pscheid92/serverlist/internal/adapter/postgres"
	"github.com/pscheid92/serverlist/internal/adapter/redis"
	"github.com/pscheid92/serverlist/internal/app"
	"github.com/pscheid92/serverlist/internal/broadcast"
	"github.com/pscheid92/serverlist/internal/platform/config"
	"github.com/pscheid92/serverlist/internal/platform/crypto"
	apperrors "github.com/pscheid92/serverlist/internal/platform/errors"
	"github.com/pscheid92/serverlist/internal/platform/logging"
	"github.com/pscheid92/serverlist/internal/platform/retry"
	"github.com/pscheid92/serverlist/internal/platform/version"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(service string) retry.Policy {
	p := retry.Startup
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Backing service not ready, retrying", "service", service, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupMongo(ctx context.Context, cfg *config.Config, m *metrics.StoreMetrics) *mongodriver.Database {
	db, err := retry.Do(ctx, startupPolicy("mongo"), retry.UnlessCanceled, func() (*mongodriver.Database, error) {
		return mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, mongo.WithMetrics(m))
	})
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		slog.Error("Failed to create MongoDB indexes", "error", err)
		os.Exit(1)
	}
	return db
}

func setupPostgres(ctx context.Context, cfg *config.Config, m *metrics.StoreMetrics) *pgxpool.Pool {
	pool, err := retry.Do(ctx, startupPolicy("postgres"), retry.UnlessCanceled, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, postgres.WithMetrics(m))
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.StoreMetrics) *goredis.Client {
	client, err := retry.Do(ctx, startupPolicy("redis"), retry.UnlessCanceled, func() (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewBreakerHook(m))
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func healthChecks(db *mongodriver.Database, pool *pgxpool.Pool, rdb *goredis.Client, checker *mcstatus.Checker) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "mongo", Check: func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }},
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "status_api", Check: checker.Healthy, Optional: true},
	}
}

func runGracefulShutdown(srv *httpserver.Server, stopRelay context.CancelFunc, broker *broadcast.Broker) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopRelay()
		broker.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	registry := metrics.NewRegistry()
	storeMetrics := metrics.NewStoreMetrics(registry)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), connectTimeout)
	db := setupMongo(connectCtx, cfg, storeMetrics)
	pool := setupPostgres(connectCtx, cfg, storeMetrics)
	rdb := setupRedis(connectCtx, cfg, storeMetrics)
	cancelConnect()

	defer func() { _ = db.Client().Disconnect(context.Background()) }()
	defer pool.Close()
	defer func() { _ = rdb.Close() }()

	// Auth-state changes travel through Redis so every instance's broker sees them.
	broker := broadcast.NewBroker(clock)
	relay := redis.NewAuthStateRelay(rdb, broker)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayReady := make(chan struct{})
	relayErr := make(chan error, 1)
	go func() { relayErr <- relay.Start(relayCtx, relayReady) }()
	select {
	case <-relayReady:
	case err := <-relayErr:
		slog.Error("Failed to start auth state relay", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := <-relayErr; err != nil {
			slog.Error("Auth state relay stopped", "error", err)
		}
	}()

	provider := identity.NewProvider(
		postgres.NewAccountRepo(pool),
		redis.NewSessionStore(rdb),
		relay,
		broker,
		crypto.Argon2idHasher{},
		cfg.SessionMaxAge,
	)

	listings := app.NewListingService(mongo.NewListingRepo(db), mongo.NewAdminDirectory(db), clock)
	checker := mcstatus.NewChecker(cfg.StatusAPIURL, mcstatus.WithMetrics(metrics.NewStatusMetrics(registry)))

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Listings:  listings,
		View:      app.NewListView(listings, checker, cfg.Locale(), cfg.StatusBedrock),
		Status:    checker,
		Identity:  provider,
		Presenter: app.NewSessionPresenter(provider, provider),
		Gate:      app.NewGate(provider),
		Clock:     clock,

		Registry:       registry,
		HTTPMetrics:    metrics.NewHTTPMetrics(registry),
		WSMetrics:      metrics.NewWebSocketMetrics(registry),
		VoteMetrics:    metrics.NewVoteMetrics(registry),
		ListingMetrics: metrics.NewListingMetrics(registry),
		ErrorMetrics:   apperrors.NewMetrics(registry),

		HealthChecks: healthChecks(db, pool, rdb, checker),
	})

	done := runGracefulShutdown(srv, stopRelay, broker)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
