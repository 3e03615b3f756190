package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/quarter-scheduler/internal/models"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
	"github.com/noah-isme/quarter-scheduler/pkg/response"
)

// RequireRoles lets requests through only when the JWT role is one of roles.
// Must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" cannot perform this action"))
			return
		}
		c.Next()
	}
}
