package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/realtime"
	"github.com/lazynerd-007/lpv1-sub000/pkg/response"
)

// HealthHandler reports process liveness plus database reachability and the
// current live connection load.
type HealthHandler struct {
	db       *gorm.DB
	registry *realtime.Registry
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(db *gorm.DB, registry *realtime.Registry) *HealthHandler {
	return &HealthHandler{db: db, registry: registry}
}

// Check responds with the subsystem health snapshot. Degraded database
// connectivity yields 503 so load balancers can rotate the instance out.
func (h *HealthHandler) Check(c *gin.Context) {
	status := http.StatusOK
	overall := "ok"
	dbStatus := "ok"

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		dbStatus = "unreachable"
	}

	payload := gin.H{
		"status":    overall,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
	}
	if h.registry != nil {
		payload["connected_users"] = h.registry.ConnectedUserCount()
		payload["active_connections"] = h.registry.TotalConnectionCount()
	}

	if status != http.StatusOK {
		c.JSON(status, response.Response{Success: false, Data: payload})
		return
	}
	response.Success(c, status, payload)
}
