package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/auth"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
)

const principalKey = "principal"

// Auth rejects requests without a valid bearer token and stores the
// extracted principal in the gin context.
func Auth(parser *auth.Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		principal, err := parser.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// SetPrincipal injects a principal directly, bypassing token parsing.
// Used by tests.
func SetPrincipal(principal model.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalKey, principal)
		c.Next()
	}
}

func MustPrincipal(c *gin.Context) (model.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return model.Principal{}, false
	}
	principal, ok := value.(model.Principal)
	return principal, ok
}
