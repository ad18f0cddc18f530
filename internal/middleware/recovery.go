package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
	"github.com/lazynerd-007/lpv1-sub000/pkg/response"
)

// Recovery converts panics into structured 500 responses instead of dropping
// the connection.
func Recovery() gin.HandlerFunc {
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				response.Error(c, apperrors.ErrInternalServer)
				c.Abort()
			}
		}()
		c.Next()
	}
}
