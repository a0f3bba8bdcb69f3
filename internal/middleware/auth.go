package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
)

// SessionCookie carries the admin panel's token.
const SessionCookie = "rentcar_session"

const (
	ctxUserID   = "userId"
	ctxUserRole = "userRole"
	ctxUser     = "user"
)

// Authenticator resolves a token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

func tokenFromRequest(c *gin.Context) string {
	// First try to get token from Authorization header
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// Then the admin session cookie
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}

	// Browsers cannot set headers on WebSocket upgrades
	return c.Query("token")
}

func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header, session cookie or token query parameter required"})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			if errors.Is(err, errors.Unauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUserRole, string(user.Role))
		c.Set(ctxUser, user)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user holds one of
// roles. It must run after AuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentActor(c).HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}

// CurrentActor returns the authenticated user of the request.
func CurrentActor(c *gin.Context) services.Actor {
	return services.Actor{
		ID:   c.GetUint(ctxUserID),
		Role: models.Role(c.GetString(ctxUserRole)),
	}
}

// CurrentUser returns the user loaded by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ctxUser); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
