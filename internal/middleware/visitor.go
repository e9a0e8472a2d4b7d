package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextKeyVisitorID is the Gin context key for the visitor token.
	ContextKeyVisitorID = "visitor_id"
	// VisitorCookieName identifies an anonymous visitor across visits.
	// Strictly essential: issued regardless of consent preferences.
	VisitorCookieName = "pe_visitor"

	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

// VisitorToken ensures every request carries a stable visitor identifier,
// issuing a fresh random token on first visit. The preview gate and all
// session state are keyed by it.
func VisitorToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID, err := c.Cookie(VisitorCookieName)
		if err != nil || visitorID == "" || uuid.Validate(visitorID) != nil {
			visitorID = uuid.New().String()
			c.SetCookie(VisitorCookieName, visitorID, visitorCookieMaxAge, "/", "", false, true)
		}
		c.Set(ContextKeyVisitorID, visitorID)
		c.Next()
	}
}

// GetVisitorID retrieves the visitor token from the Gin context.
func GetVisitorID(c *gin.Context) string {
	val, exists := c.Get(ContextKeyVisitorID)
	if !exists {
		return ""
	}
	id, ok := val.(string)
	if !ok {
		return ""
	}
	return id
}
