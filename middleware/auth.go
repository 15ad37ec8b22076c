package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moments/auth"
	"moments/logger"
	"moments/models"
)

const (
	// UserIDKey holds the authenticated user id in the gin context.
	UserIDKey   = "userId"
	identityKey = "identity"
)

// TokenParser validates a bearer token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}

// JWTAuthMiddleware accepts "Authorization: Bearer <token>" or a token query
// parameter and stores the caller identity in the context.
func JWTAuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip middleware for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			token := c.Query("token")
			if token == "" {
				abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "No authorization token provided")
				return
			}
			authHeader = "Bearer " + token
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Format should be: Bearer <token>")
			return
		}

		claims, err := tokens.Parse(parts[1])
		if err != nil {
			logger.FromGin(c).Debug("token rejected", zap.Error(err))
			message := "Token validation failed"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "Token has expired"
			}
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(identityKey, claims.Identity())
		c.Next()
	}
}

// RequireAdmin must run after JWTAuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		if !id.IsAdmin {
			abort(c, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by JWTAuthMiddleware.
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok && id.UserID != ""
}
