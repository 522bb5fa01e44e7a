package middleware

import (
	"net/http"
	"strings"

	"sdrwatch/pkg/config"
	"sdrwatch/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware simple token authentication for control routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expectedAPIKey := config.GlobalConfig.Server.APIKey

		// Skip authentication if API key is not configured
		if expectedAPIKey == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		authHeader = strings.TrimPrefix(authHeader, "Bearer ")

		if authHeader != expectedAPIKey {
			logger.Warnf("unauthorized request to %s, invalid API key", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
