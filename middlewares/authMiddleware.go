package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/utils"
)

// Capability actions carried in the token's permissions.
const (
	ActionView    = "view"
	ActionAdd     = "add"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionApprove = "approve"
)

// RequireCapability rejects callers whose token does not grant action on module.
// Must run after SessionMiddleware.
func RequireCapability(module, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.HasCapability(c.Request.Context(), module, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
