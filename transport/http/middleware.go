package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/service"
)

// sessionContextKey is where the validated session lives in the gin context.
const sessionContextKey = "authSession"

// sessionFromContext retrieves the session placed by AuthMiddleware.
func sessionFromContext(c *gin.Context) (*core.Session, bool) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*core.Session)
	return session, ok
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token cookie.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if token, err := c.Cookie("access_token"); err == nil {
		return token
	}
	return ""
}

// AuthMiddleware validates the session token on every request. Deactivated
// identities are rejected here even if their token has not expired.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			return
		}

		session, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, core.ErrIdentityInactive) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account inactive or not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// RequireRole allows the request through only when the session role is in
// the allow-set.
func RequireRole(authService *service.AuthService, roles ...core.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No session"})
			return
		}

		if err := authService.Authorize(session, roles...); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: Insufficient role permission"})
			return
		}

		c.Next()
	}
}
