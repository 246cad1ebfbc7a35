package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// tokenQueryParam carries the access token on websocket handshakes, where
// browsers cannot set an Authorization header.
const tokenQueryParam = "token"

var ErrMissingToken = errors.New("auth: missing bearer token")

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// AuthenticateRequest verifies the access token of a raw HTTP request, taken
// from the Authorization header or, failing that, the token query parameter.
func AuthenticateRequest(m *Manager, r *http.Request, now time.Time) (Claims, error) {
	tok := ""
	if raw := strings.TrimSpace(r.Header.Get(authorizationHeader)); strings.HasPrefix(raw, bearerPrefix) {
		tok = strings.TrimPrefix(raw, bearerPrefix)
	}
	if tok == "" {
		tok = strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
	}
	if tok == "" {
		return Claims{}, ErrMissingToken
	}
	return m.Verify(tok, TokenTypeAccess, now)
}
