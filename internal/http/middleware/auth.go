// README: Auth middleware: verifies bearer tokens and exposes the caller to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/domain"
	"easyfuel/internal/infra"
	"easyfuel/internal/types"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

var knownRoles = map[string]bool{
	domain.ActorCustomer: true,
	domain.ActorDriver:   true,
	domain.ActorSupplier: true,
	domain.ActorAdmin:    true,
}

// Auth rejects requests without a valid bearer token in the Authorization header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return authenticate(verifier, false)
}

// AuthUpgrade is Auth for the WebSocket endpoint. Browsers cannot set headers
// on an upgrade, so a GET may carry the token as access_token instead.
func AuthUpgrade(verifier infra.TokenVerifier) gin.HandlerFunc {
	return authenticate(verifier, true)
}

func authenticate(verifier infra.TokenVerifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c, allowQuery)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthenticated"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}
		role := token.Role()
		if role == "" {
			role = domain.ActorCustomer
		}
		if !knownRoles[role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown role", "code": "not_authorized"})
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func bearer(c *gin.Context, allowQuery bool) string {
	h := c.GetHeader("Authorization")
	if h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if allowQuery && c.Request.Method == http.MethodGet {
		return c.Query("access_token")
	}
	return ""
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// Actor converts the authenticated caller into the domain identity.
func Actor(c *gin.Context) domain.Actor {
	return domain.Actor{Type: CallerRole(c), ID: types.ID(CallerUID(c))}
}
