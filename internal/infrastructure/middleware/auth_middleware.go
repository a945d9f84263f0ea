package middleware

import (
	"net/http"
	"strings"

	"roomhub/internal/core/services"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware guards the control-plane endpoints. It accepts the same
// bearer credentials as the realtime handshake and stores the verified
// identity on the request context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		identity, err := authService.VerifyCredential(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			c.Abort()
			return
		}

		c.Set("user_id", identity.ID)
		c.Set("username", identity.Username)
		c.Next()
	}
}
