package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKeyAuthenticated is the Gin context key for the signed-in flag.
const ContextKeyAuthenticated = "authenticated"

// OptionalAuth consumes the external identity provider's bearer token and
// reduces it to a boolean signed-in status. A missing or invalid token is
// not an error: the visitor simply counts as unauthenticated and the
// freemium preview limit applies.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyAuthenticated, validBearer(c.GetHeader("Authorization"), secret))
		c.Next()
	}
}

// IsAuthenticated retrieves the signed-in status from the Gin context.
func IsAuthenticated(c *gin.Context) bool {
	val, exists := c.Get(ContextKeyAuthenticated)
	if !exists {
		return false
	}
	authed, ok := val.(bool)
	return ok && authed
}

func validBearer(header, secret string) bool {
	if header == "" {
		return false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	return err == nil && token.Valid
}
