package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/auth"
	"github.com/lazynerd-007/lpv1-sub000/internal/handlers"
	"github.com/lazynerd-007/lpv1-sub000/internal/middleware"
	"github.com/lazynerd-007/lpv1-sub000/internal/realtime"
	"github.com/lazynerd-007/lpv1-sub000/internal/services"
)

// Options bundles the collaborators the router needs.
type Options struct {
	DB            *gorm.DB
	Service       *services.NotificationService
	Broadcaster   *realtime.Broadcaster
	Hub           *realtime.Hub
	JWTService    *auth.JWTService
	EnableMetrics bool
}

// NewRouter assembles the HTTP surface: health, optional metrics, and the
// authenticated notification API.
func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	healthHandler := handlers.NewHealthHandler(opts.DB, opts.Hub.Registry())
	router.GET("/api/health", healthHandler.Check)

	if opts.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	notificationHandler := handlers.NewNotificationHandler(opts.Service, opts.Broadcaster, opts.Hub, opts.JWTService)
	registerNotificationRoutes(router, notificationHandler, opts.JWTService, opts.DB)

	return router
}
