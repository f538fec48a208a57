package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/pkg/response"
)

// Authenticator validates a token and returns its claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// JWT returns a middleware that validates the bearer token (or session cookie)
// and stores the claims in the request context.
func JWT(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := tokenFrom(c)
		if !ok {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		claims, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func tokenFrom(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := c.Cookie(auth.SessionCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}
