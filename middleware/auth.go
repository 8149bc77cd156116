package middleware

import (
	"net/http"
	"strings"

	"github.com/driftchat/backend/utils"
	"github.com/gin-gonic/gin"
)

// JWTAuth validates the Authorization header and stores the user ID in the
// request context. A token query parameter is accepted as a fallback so
// that sendBeacon-style status reports and websocket upgrades, which
// cannot set headers, can still authenticate.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			return
		}

		userID, err := utils.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
