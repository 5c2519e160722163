// api/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vertabase/verta-backend/internal/auth"
	"github.com/vertabase/verta-backend/internal/domain"
)

// UserContextKey is where the authenticated *domain.User lives in the gin
// context.
const UserContextKey = "currentUser"

var (
	ErrAuthHeaderMissing = errors.New("authorization header required")
	ErrAuthHeaderFormat  = errors.New("authorization header format must be Bearer {token}")
)

// RequireAuth rejects requests without a valid access token. The resolved
// user is stored in the context for handlers.
func RequireAuth(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		user, err := manager.VerifyAccess(c.Request.Context(), tokenString)
		if err != nil {
			customLog.Printf("RequireAuth: Token verification failed: %v", err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// OptionalAuth resolves the user when a token is present but lets anonymous
// requests through. Record rules decide what anonymous actors may do.
// A token that is present but invalid is still rejected.
func OptionalAuth(manager *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}

		tokenString, err := bearerToken(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		user, err := manager.VerifyAccess(c.Request.Context(), tokenString)
		if err != nil {
			customLog.Printf("OptionalAuth: Token verification failed: %v", err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user from the context, or nil for
// anonymous requests.
func CurrentUser(c *gin.Context) *domain.User {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil
	}
	user, ok := value.(*domain.User)
	if !ok {
		return nil
	}
	return user
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrAuthHeaderMissing
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrAuthHeaderFormat
	}
	return parts[1], nil
}
