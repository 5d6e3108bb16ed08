package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/application/service"
	"github.com/sangkips/pharmadesk/internal/config"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	domainRepo "github.com/sangkips/pharmadesk/internal/domain/repository"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/infrastructure/cache"
	"github.com/sangkips/pharmadesk/internal/infrastructure/database"
	applog "github.com/sangkips/pharmadesk/internal/infrastructure/logger"
	"github.com/sangkips/pharmadesk/internal/infrastructure/metrics"
	"github.com/sangkips/pharmadesk/internal/infrastructure/repository"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/internal/presentation/http/handler"
	"github.com/sangkips/pharmadesk/internal/presentation/http/middleware"
	"github.com/sangkips/pharmadesk/internal/presentation/http/routes"
	"github.com/sangkips/pharmadesk/internal/returns"
	"github.com/sangkips/pharmadesk/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := applog.New(applog.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() { _ = logger.Sync() }()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	m := metrics.New()

	// Search cache; lookups still work without Redis
	var searchCache cache.SearchCache = cache.NopCache{}
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("Redis unavailable, search cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			searchCache = cache.NewRedisSearchCache(client, "", cfg.Redis.CacheTTL, logger)
		}
	}

	backend, err := upstream.New(upstream.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		Timeout:           cfg.Upstream.Timeout,
		ServiceToken:      cfg.Upstream.ServiceToken,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
	}, upstream.WithObserver(m), upstream.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create upstream client", zap.Error(err))
	}

	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// Initialize repositories
	draftRepo := repository.NewReturnDraftRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	// Initialize services
	lookupService := service.NewLookupService(backend, searchCache, m, service.LookupConfig{
		DefaultDelay:       cfg.Lookup.DefaultDelay,
		PurchaseOrderDelay: cfg.Lookup.PurchaseOrderDelay,
		SessionTTL:         cfg.Lookup.SessionTTL,
		PageSize:           cfg.Lookup.PageSize,
	}, logger)

	returnService := service.NewReturnService(draftRepo, backend, service.ReturnServiceOptions{
		Policy:   returns.Policy{RequireReason: cfg.Returns.RequireReason},
		Observer: m,
		Logger:   logger,
		// stock and open quantities changed upstream
		OnReturnComplete: func(ctx context.Context, flow enum.ReturnFlow, _ entity.RemoteID) {
			lookupService.InvalidateKinds(ctx, flow.TransactionKind(), enum.LookupKindProduct, enum.LookupKindBatch)
		},
	})
	historyService := service.NewHistoryService(backend)

	rateLimiter := middleware.NewUserRateLimiter(middleware.RateLimiterConfigFrom(cfg.RateLimit.Requests, cfg.RateLimit.Duration))

	go lookupService.Run(ctx)
	go rateLimiter.Run(ctx)
	go purgeIdempotencyKeys(ctx, idempotencyRepo, logger)

	// Initialize handlers
	handlers := &routes.Handlers{
		Lookup:  handler.NewLookupHandler(lookupService),
		Return:  handler.NewReturnHandler(returnService),
		History: handler.NewHistoryHandler(historyService),
	}

	// Setup routes
	router := routes.Setup(handlers, &routes.Deps{
		JWTManager:      jwtManager,
		Cfg:             cfg,
		IdempotencyRepo: idempotencyRepo,
		RateLimiter:     rateLimiter,
		Metrics:         m,
		Logger:          logger,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	port := cfg.App.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("service", cfg.App.Name),
			zap.String("port", port),
			zap.String("env", cfg.App.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotencyKeys deletes expired keys every hour until ctx is done
func purgeIdempotencyKeys(ctx context.Context, repo domainRepo.IdempotencyRepository, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("Failed to purge idempotency keys", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("Purged idempotency keys", zap.Int64("count", n))
			}
		}
	}
}
