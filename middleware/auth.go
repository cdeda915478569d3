package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"learnloop/models"
	"learnloop/services"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user's id.
const UserIDKey = "user_id"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	ValidateToken(token string) (uint, error)
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// AuthMiddleware requires a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return authenticate(auth, bearerToken)
}

// QueryTokenAuth accepts the token from the "token" query parameter as well,
// for websocket upgrades where browsers cannot set headers.
func QueryTokenAuth(auth Authenticator) gin.HandlerFunc {
	return authenticate(auth, func(c *gin.Context) string {
		if token := bearerToken(c); token != "" {
			return token
		}
		return c.Query("token")
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func authenticate(auth Authenticator, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extract(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		userID, err := auth.ValidateToken(token)
		if errors.Is(err, services.ErrTokenExpired) {
			abort(c, http.StatusUnauthorized, "Token expired")
			return
		}
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		if _, err := auth.GetUser(c.Request.Context(), userID); err != nil {
			if services.KindOf(err) == services.KindNotFound {
				abort(c, http.StatusUnauthorized, "User not found")
				return
			}
			log.Printf("Failed to load user %d during auth: %v", userID, err)
			abort(c, http.StatusInternalServerError, "Server error")
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}
