package middlewares

import (
	"net/http"

	"govnav-be/models"

	"github.com/gin-gonic/gin"
)

// RequireGovEmployee gates status-transition and analytics routes. Runs
// after AuthMiddleware has populated the caller's role.
func RequireGovEmployee() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		role, ok := roleVal.(string)
		if !exists || !ok || models.UserRole(role) != models.GovEmployee {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied. Government employees only."})
			c.Abort()
			return
		}

		c.Next()
	}
}
