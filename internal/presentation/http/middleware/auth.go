package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	infraRepo "github.com/sangkips/pharmadesk/internal/infrastructure/repository"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"github.com/sangkips/pharmadesk/pkg/utils"
)

// AuthMiddleware validates the bearer token issued by the pharmacy backend.
// The caller's ID scopes every stored draft, and the raw token is kept on
// the request context so backend calls are made on the caller's behalf.
func AuthMiddleware(jwtManager *utils.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}
		tokenString := parts[1]

		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		userID := claims.UserID()
		c.Set("user_id", userID)
		c.Set("user_email", claims.Email)
		c.Set("user_roles", claims.Roles)

		ctx := upstream.WithToken(c.Request.Context(), tokenString)
		ctx = infraRepo.WithOwner(ctx, userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
