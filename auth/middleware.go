package auth

import (
	"net/http"
	"strings"

	apperrors "pairchat/errors"

	"github.com/gin-gonic/gin"
)

// userIDKey is the gin context key carrying the authenticated subject.
const userIDKey = "user_id"

// Middleware validates the bearer credential of every request and injects
// the subject user id into the gin context for downstream handlers.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authorization token is missing",
				"code":  apperrors.CodeTransportAuth,
			})
			return
		}

		claims, err := ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
				"code":  apperrors.CodeTransportAuth,
			})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// BearerToken extracts the credential from the Authorization header or,
// as a fallback for websocket handshakes, the "token" query parameter.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// UserID returns the authenticated subject set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
