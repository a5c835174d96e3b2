package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/response"
)

// ContextKeySessionToken is the Gin context key for the raw bearer token.
const ContextKeySessionToken = "session_token"

// RequireBearer rejects requests without a bearer token and stores the raw
// token for the handler. Validating it is left to the handler so each
// endpoint can answer with its own error code.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		c.Set(ContextKeySessionToken, token)
		c.Next()
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) string {
	if v, ok := c.Get(ContextKeySessionToken); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
