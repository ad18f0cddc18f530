package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/models"
	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
	"github.com/lazynerd-007/lpv1-sub000/pkg/response"
)

// RequireAdmin restricts a route to active admin accounts. It must run after
// RequireAuth; the admin flag is read from the store on every request so a
// revoked admin loses access without waiting for token expiry.
func RequireAdmin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).
			Select("id", "is_admin", "is_active").
			Where("id = ?", userID).
			First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.Error(c, apperrors.ErrForbidden)
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}

		if !user.IsAdmin || !user.IsActive {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}
