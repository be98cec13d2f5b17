package auth

import (
	"context"

	apierrors "github.com/docdoc/docdoc-server/internal/errors"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/gin-gonic/gin"
)

// Define a custom type for context keys to avoid collisions.
type contextKey string

// UserIDKey is the context key for the authenticated user's UUID.
const UserIDKey contextKey = "user_id"

// Authenticator resolves an access key to a user UUID.
type Authenticator interface {
	Authenticate(ctx context.Context, accessKey string) (string, error)
}

// AccessKeyFromRequest reads the access key from the x-access-key header,
// falling back to the accessKey query parameter (browsers can't set headers
// on websocket upgrades).
func AccessKeyFromRequest(c *gin.Context) string {
	if key := c.GetHeader("x-access-key"); key != "" {
		return key
	}
	return c.Query("accessKey")
}

// RequireAccessKey validates the access key and attaches the user UUID to the context.
func RequireAccessKey(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessKey := AccessKeyFromRequest(c)
		if accessKey == "" {
			apierrors.AbortWithUnauthorized(c, "access key required", nil)
			return
		}

		userID, err := authenticator.Authenticate(c.Request.Context(), accessKey)
		if err != nil {
			apierrors.AbortWithUnauthorized(c, "not authorized", nil)
			return
		}

		ctx := logger.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(UserIDKey), userID)

		c.Next()
	}
}

// GetUserID extracts the authenticated user UUID from the Gin context.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(string(UserIDKey))
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok
}
