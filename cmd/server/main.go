package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Pawieee/microbank/internal/cache"
	"github.com/Pawieee/microbank/internal/config"
	"github.com/Pawieee/microbank/internal/handler"
	"github.com/Pawieee/microbank/internal/metrics"
	"github.com/Pawieee/microbank/internal/middleware"
	"github.com/Pawieee/microbank/internal/notify"
	"github.com/Pawieee/microbank/internal/repository"
	"github.com/Pawieee/microbank/internal/scoring"
	"github.com/Pawieee/microbank/internal/service"
	"github.com/Pawieee/microbank/pkg/logger"
	"github.com/Pawieee/microbank/pkg/response"
	"github.com/Pawieee/microbank/pkg/validation"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := initDB(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := initRedis(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	engine, err := scoring.NewEngine(cfg.GetScoreThreshold(), nil)
	if err != nil {
		log.Error("failed to build scoring engine", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	notifier := notify.NewLogNotifier(log)
	ledgerCache := cache.NewLedgerCache(redisClient, cfg.Business.LedgerCacheTTL)
	uow := repository.NewUnitOfWork(db, cfg.Business.LockTimeout)

	// Initialize services
	applicationService := service.NewApplicationService(uow, engine, validation.New(), notifier, m, log)
	ledgerService := service.NewLedgerService(uow, ledgerCache, notifier, m, log)
	queryService := service.NewQueryService(repository.ReposFor(db), ledgerCache, log)

	loanHandler := handler.NewLoanHandler(applicationService, ledgerService, queryService)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.Health.Timeout, log)
	paymentGuard := middleware.Idempotency(redisClient, cfg.Business.IdempotencyTTL, log)

	// Setup routes
	router := setupRoutes(loanHandler, healthHandler, m, paymentGuard, log)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      withCORS(cfg, router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	select {
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

func initDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	return cache.OpenRedis(ctx, &redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(
	loanHandler *handler.LoanHandler,
	healthHandler *handler.HealthHandler,
	m *metrics.Metrics,
	paymentGuard func(http.Handler) http.Handler,
	log *slog.Logger,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(log), m.Middleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	loanHandler.RegisterRoutes(api, paymentGuard)

	return router
}

func withCORS(cfg *config.Config, next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderIdempotencyKey},
		ExposedHeaders:   []string{middleware.HeaderReplayed, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
