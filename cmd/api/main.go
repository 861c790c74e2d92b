// Command api runs the chatguard HTTP service: the chat API wrapped in
// per-scope rate limiting, daily usage quotas, dependency circuit
// breakers, and the response cache.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"chatguard/internal/cache"
	"chatguard/internal/config"
	"chatguard/internal/infra/ai"
	"chatguard/internal/infra/transcript"
	"chatguard/internal/quota"
	"chatguard/internal/resilience/circuitbreaker"
	"chatguard/internal/resilience/retry"
	"chatguard/internal/store/redisstore"
	"chatguard/pkg/ratelimit"

	chatUC "chatguard/internal/usecase/chat"

	hhttp "chatguard/internal/handler/http"
	hchat "chatguard/internal/handler/http/chat"
	"chatguard/internal/handler/http/middleware"
	"chatguard/internal/handler/http/requestid"
	husage "chatguard/internal/handler/http/usage"
	"chatguard/internal/observability/logging"
	"chatguard/internal/observability/tracing"
)

// sharedStore is everything the protection layers need from the store.
// Both the Redis store and the in-process memory store satisfy it.
type sharedStore interface {
	ratelimit.CounterStore
	ratelimit.PenaltyStore
	quota.CounterStore
	quota.SweepStore
	cache.KV
}

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceShutdown, err := tracing.Setup(ctx, getVersion())
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", slog.Any("error", err))
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := traceShutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", slog.Any("error", err))
			}
		}()
	}

	store, memStore := initStore(ctx, logger, cfg)

	components := setupServer(logger, cfg, store)

	retention := quota.NewRetentionJob(store, cfg.UsageRetention, "", nil)
	if err := retention.Start(ctx); err != nil {
		logger.Error("retention job start failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer retention.Stop()

	// The memory store has no server-side expiry, so sweep it here.
	if memStore != nil {
		go runMemoryCleanup(ctx, memStore)
	}

	runServer(ctx, logger, components)
}

// initStore connects to the configured Redis store, or falls back to
// the in-process memory store when no address is configured
// (single-instance and development mode). The second return value is
// non-nil only for the memory store.
func initStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (sharedStore, *ratelimit.MemoryStore) {
	if cfg.Redis.Addr == "" {
		logger.Warn("no shared store configured, using in-process memory store; " +
			"limits will not be shared across instances")
		mem := ratelimit.NewMemoryStore(nil)
		return mem, mem
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	store := redisstore.New(client, redisstore.WithPrefix(cfg.Redis.KeyPrefix))

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
	defer pingCancel()
	if err := store.Ping(pingCtx); err != nil {
		// Not fatal: every layer fails open while the store is down.
		logger.Warn("shared store unreachable at startup, protections will fail open",
			slog.String("addr", cfg.Redis.Addr),
			slog.Any("error", err))
	} else {
		logger.Info("shared store connected", slog.String("addr", cfg.Redis.Addr))
	}
	return store, nil
}

// serverComponents holds what runServer needs.
type serverComponents struct {
	Handler http.Handler
}

// setupServer wires the protection layers, use cases, and HTTP routes.
func setupServer(logger *slog.Logger, cfg *config.Config, store sharedStore) *serverComponents {
	// Rate limiting
	rlMetrics := ratelimit.NewPrometheusMetrics()
	guard := ratelimit.NewStoreGuard(ratelimit.StoreGuardConfig{Metrics: rlMetrics})
	fixed := ratelimit.NewFixedWindowLimiter(ratelimit.FixedWindowConfig{
		Store:   store,
		Guard:   guard,
		Metrics: rlMetrics,
	})
	adaptive := ratelimit.NewAdaptiveLimiter(fixed, store, cfg.RateLimit, rlMetrics)

	// Daily quotas
	tracker := quota.NewTracker(store, quota.Config{
		UTCOffsetMinutes: cfg.UTCOffsetMinutes,
		Tiers:            cfg.QuotaTiers(),
		Retention:        cfg.UsageRetention,
	})

	// Response cache
	cacheRegistry := prometheus.NewRegistry()
	cacheStore := cache.NewStore(store, cfg.CacheTTL, cache.NewPrometheusMetrics(cacheRegistry))
	invalidator := cache.NewCoordinator(cacheStore)

	// Dependency circuit breakers
	breakers := circuitbreaker.NewRegistry(
		cfg.BreakerConfig(circuitbreaker.DependencyAI),
		cfg.BreakerConfig(circuitbreaker.DependencyDatabase),
		cfg.BreakerConfig(circuitbreaker.DependencyPayment),
	)

	// AI completer: a real provider when configured, echo otherwise
	var completer chatUC.Completer
	aiCfg := ai.ConfigFromEnv()
	if aiCfg.BaseURL != "" {
		completer = ai.NewHTTPCompleter(aiCfg)
		logger.Info("AI completer configured", slog.String("base_url", aiCfg.BaseURL))
	} else {
		completer = ai.NewNoOp()
		logger.Warn("no AI provider configured, using echo completer")
	}

	chatSvc := &chatUC.Service{
		Completer:   completer,
		Messages:    transcript.NewStore(store, 0),
		AIBreaker:   breakers.AI,
		DBBreaker:   breakers.Database,
		AIRetry:     retry.AIConfig(),
		DBRetry:     retry.DatabaseConfig(),
		Quota:       tracker,
		Cache:       cacheStore,
		Invalidator: invalidator,
	}

	// Protection decorators per route class. The send route runs under
	// the tier-dependent chat scope with the daily quota gate; reads go
	// through the API scope without consuming quota.
	sendDeco := middleware.NewDecorator(middleware.DecoratorConfig{
		Limiter: adaptive,
		Tracker: tracker,
		Scope:   middleware.ChatScope,
	})
	readDeco := middleware.NewDecorator(middleware.DecoratorConfig{
		Limiter: adaptive,
		Scope:   middleware.StaticScope(ratelimit.ScopeAPI),
	})

	mux := http.NewServeMux()
	hchat.Register(mux, chatSvc, sendDeco, readDeco)
	husage.Register(mux, tracker, readDeco, middleware.HeaderTierFunc)

	health := &hhttp.HealthHandler{
		Guard:    guard,
		Breakers: breakers,
		Version:  getVersion(),
	}
	if pinger, ok := store.(hhttp.Pinger); ok {
		health.Store = pinger
	}
	mux.Handle("GET /healthz", health)
	mux.Handle("GET /metrics", hhttp.MetricsHandler(rlMetrics.Registry(), cacheRegistry))

	return &serverComponents{Handler: applyMiddleware(logger, mux)}
}

// applyMiddleware wraps the mux with the ambient middleware chain.
// Order (outermost first): request ID, tracing, recovery, logging,
// body limit, timeout, metrics. The protection decorators sit inside,
// on the routes they guard.
func applyMiddleware(logger *slog.Logger, handler http.Handler) http.Handler {
	chain := handler

	chain = hhttp.MetricsMiddleware(chain)
	chain = hhttp.Timeout(60 * time.Second)(chain)
	chain = hhttp.LimitRequestBody(1 << 20)(chain)
	chain = hhttp.Logging(logger)(chain)
	chain = hhttp.Recover(logger)(chain)
	chain = tracing.Middleware(chain)
	chain = requestid.Middleware(chain)

	return chain
}

// runMemoryCleanup periodically drops expired entries from the
// in-process store.
func runMemoryCleanup(ctx context.Context, store *ratelimit.MemoryStore) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.Cleanup(); removed > 0 {
				slog.Debug("memory store cleanup",
					slog.Int("removed", removed),
					slog.Int("remaining", store.Len()))
			}
		}
	}
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(ctx context.Context, logger *slog.Logger, components *serverComponents) {
	addr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("version", getVersion()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

// getVersion returns the build version injected via APP_VERSION.
func getVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
