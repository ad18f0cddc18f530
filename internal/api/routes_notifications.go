package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/auth"
	"github.com/lazynerd-007/lpv1-sub000/internal/handlers"
	"github.com/lazynerd-007/lpv1-sub000/internal/middleware"
)

func registerNotificationRoutes(router *gin.Engine, handler *handlers.NotificationHandler, jwtService *auth.JWTService, db *gorm.DB) {
	// The stream endpoint authenticates inside the handler so invalid tokens
	// produce a policy-violation close frame rather than a failed upgrade.
	router.GET("/api/notifications/stream", handler.Stream)

	group := router.Group("/api/notifications")
	group.Use(middleware.RequireAuth(jwtService))
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/:id/read", handler.MarkRead)
		group.DELETE("/:id", handler.Delete)

		group.GET("/preferences", handler.GetPreferences)
		group.PUT("/preferences/:type", handler.UpdatePreference)
	}

	// Producer endpoints write into other users' inboxes and broadcast to
	// every connected client, so they are limited to admin accounts. Other
	// platform services call them with the system account's token.
	producers := group.Group("")
	producers.Use(middleware.RequireAdmin(db))
	{
		producers.POST("", handler.Create)
		producers.POST("/bulk", handler.CreateBulk)
		producers.POST("/announce", handler.Announce)
	}
}
