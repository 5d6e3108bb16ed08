package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/config"
	domainRepo "github.com/sangkips/pharmadesk/internal/domain/repository"
	"github.com/sangkips/pharmadesk/internal/infrastructure/logger"
	"github.com/sangkips/pharmadesk/internal/infrastructure/metrics"
	"github.com/sangkips/pharmadesk/internal/presentation/http/handler"
	"github.com/sangkips/pharmadesk/internal/presentation/http/middleware"
	"github.com/sangkips/pharmadesk/pkg/utils"
	"go.uber.org/zap"
)

// Handlers holds all the HTTP handlers used for route registration.
type Handlers struct {
	Lookup  *handler.LookupHandler
	Return  *handler.ReturnHandler
	History *handler.HistoryHandler
}

// Deps holds shared dependencies needed by the routes.
type Deps struct {
	JWTManager      *utils.JWTManager
	Cfg             *config.Config
	IdempotencyRepo domainRepo.IdempotencyRepository
	RateLimiter     *middleware.UserRateLimiter
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
	// Ping reports whether the database is reachable; nil skips the check
	Ping func(ctx context.Context) error
}

// Setup creates the Gin router and registers all routes.
func Setup(h *Handlers, deps *Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(deps.Logger))
	router.Use(logger.Recovery(deps.Logger))
	router.Use(middleware.CORSMiddleware(&deps.Cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if deps.Ping != nil {
			if err := deps.Ping(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("health check failed", zap.Error(err))
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": deps.Cfg.App.Name,
		})
	})

	if deps.Metrics != nil && deps.Cfg.Metrics.Enabled {
		router.GET(deps.Cfg.Metrics.Path, deps.Metrics.GinHandler())
	}

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(deps.JWTManager))
		if deps.RateLimiter != nil {
			protected.Use(deps.RateLimiter.Middleware())
		}

		registerProtectedRoutes(protected, h, deps)
	}

	return router
}

func registerProtectedRoutes(protected *gin.RouterGroup, h *Handlers, deps *Deps) {
	// One-shot search
	protected.GET("/search/:kind", h.Lookup.Search)

	// Lookup sessions
	registerLookupRoutes(protected, h)

	// Return drafts and history
	registerReturnRoutes(protected, h, deps)
}

func registerLookupRoutes(protected *gin.RouterGroup, h *Handlers) {
	lookups := protected.Group("/lookups")
	{
		lookups.POST("", h.Lookup.Create)
		lookups.GET("/:id", h.Lookup.Get)
		lookups.POST("/:id/open", h.Lookup.Open)
		lookups.PUT("/:id/term", h.Lookup.Term)
		lookups.POST("/:id/select", h.Lookup.Select)
		lookups.POST("/:id/clear", h.Lookup.Clear)
		lookups.DELETE("/:id", h.Lookup.Delete)
	}
}

func registerReturnRoutes(protected *gin.RouterGroup, h *Handlers, deps *Deps) {
	returns := protected.Group("/returns")
	{
		drafts := returns.Group("/drafts")
		drafts.POST("", h.Return.CreateDraft)
		drafts.GET("", h.Return.ListDrafts)
		drafts.GET("/:id", h.Return.GetDraft)
		drafts.PATCH("/:id", h.Return.UpdateDraft)
		drafts.DELETE("/:id", h.Return.DeleteDraft)
		drafts.PUT("/:id/transaction", h.Return.SelectTransaction)
		drafts.DELETE("/:id/transaction", h.Return.ClearTransaction)
		drafts.PATCH("/:id/items/:item_id", h.Return.UpdateItem)

		if deps.IdempotencyRepo != nil {
			drafts.POST("/:id/submit", middleware.Idempotency(middleware.IdempotencyConfig{
				Repo: deps.IdempotencyRepo,
			}), h.Return.Submit)
		} else {
			drafts.POST("/:id/submit", h.Return.Submit)
		}

		returns.GET("/:flow", h.History.List)
	}
}
