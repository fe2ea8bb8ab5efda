package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/config"
	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/handler"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/cache"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/memory"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveFlags struct {
	migrate    bool
	seedAgents string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}
	cmd.Flags().BoolVar(&flags.migrate, "migrate", false, "apply the schema before serving (postgres backend)")
	cmd.Flags().StringVar(&flags.seedAgents, "seed-agents", "", "comma-separated id:name pairs added to the roster at startup")
	return cmd
}

func serve(parent context.Context, flags serveFlags) error {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Error reporting ---
	flushSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Environment, version)
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer flushSentry()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("store", logger)

	// --- Storage ---
	store, closeStore, err := openStore(ctx, cfg, flags, cb, resilienceCfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedAgents(ctx, store, flags.seedAgents); err != nil {
		return err
	}

	deps := map[string]handler.Pinger{"store": store}

	// --- Realtime & cache ---
	hub := realtime.NewHub(logger, nil)
	defer hub.Close()

	var publisher port.ChangePublisher = hub
	var roster port.Cache[[]domain.Agent]
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		roster = cache.NewRedis[[]domain.Agent](rdb, "crm:cache:", cfg.CacheTTL, logger)
		publisher = realtime.NewRedisPublisher(rdb, logger)
		deps["redis"] = redisPinger{rdb}

		go realtime.RelayUntilDone(ctx, rdb, hub, resilienceCfg, logger)
		logger.Info("lead changes broadcast through redis", zap.String("channel", realtime.Channel))
	} else {
		roster = cache.New[[]domain.Agent](ctx, cfg.CacheTTL)
		logger.Info("lead changes broadcast in-process only")
	}

	// --- Services ---
	loc := cfg.Location()
	clock := service.SystemClock{}
	leadSvc := service.NewLeadService(store, store, store, publisher, metrics, logger, clock, loc).
		WithRosterCache(roster)
	notifSvc := service.NewNotificationService(store, store, store, roster, metrics, logger, clock, loc)
	if flags.seedAgents != "" {
		// A shared cache may still hold the roster from before seeding.
		notifSvc.InvalidateRoster()
	}

	// --- Router ---
	router := handler.NewRouter(leadSvc, notifSvc, hub, metrics, handler.Options{
		JWTSecret:      cfg.JWTSecret,
		DevAuth:        cfg.DevAuth,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Dependencies:   deps,
	}, logger)

	// --- Server ---
	// No WriteTimeout: /v1/events streams indefinitely.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("server shutting down...")
	// Ends open event streams so Shutdown does not wait on them.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// rosterWriter is implemented by the backends that own the agents table.
type rosterWriter interface {
	UpsertAgent(ctx context.Context, a domain.Agent) error
}

func openStore(ctx context.Context, cfg *config.Config, flags serveFlags, cb *gobreaker.CircuitBreaker, rcfg resilience.Config, logger *zap.Logger) (port.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if flags.migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.Info("schema applied")
		}
		logger.Info("using postgres as data backend")
		return postgres.NewStore(pool, cb, rcfg, logger), pool.Close, nil

	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		return supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, cb, rcfg, logger), func() {}, nil

	default:
		logger.Warn("using in-memory data backend, state is lost on restart")
		return memory.New(), func() {}, nil
	}
}

// seedAgents parses "id:name,id:name" and upserts each agent as active.
func seedAgents(ctx context.Context, store port.Store, pairs string) error {
	if pairs == "" {
		return nil
	}
	w, ok := store.(rosterWriter)
	if !ok {
		return errors.New("--seed-agents is not supported by this backend")
	}
	for _, pair := range strings.Split(pairs, ",") {
		id, name, _ := strings.Cut(strings.TrimSpace(pair), ":")
		if id == "" {
			continue
		}
		if name == "" {
			name = id
		}
		if err := w.UpsertAgent(ctx, domain.Agent{ID: id, Name: name, Active: true}); err != nil {
			return fmt.Errorf("seed agent %s: %w", id, err)
		}
	}
	return nil
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }
