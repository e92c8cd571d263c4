package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireStaff rejects callers whose token does not carry is_staff.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CtxUserID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication credentials were not provided."})
			return
		}
		if !c.GetBool(CtxIsStaff) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action."})
			return
		}
		c.Next()
	}
}

// ReadOnlyUnlessStaff lets anyone authenticated read and only staff write.
func ReadOnlyUnlessStaff() gin.HandlerFunc {
	staff := RequireStaff()
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			staff(c)
		}
	}
}
