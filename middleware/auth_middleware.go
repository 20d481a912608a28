package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"cmsanalytics/api/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthRequired admits CMS administrators: either the shared X-API-KEY or a
// JWT with the admin role, taken from the jwt_token cookie or a Bearer header.
func AuthRequired(adminKey string, jwtSecret []byte, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-KEY"); key != "" && adminKey != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) == 1 {
			c.Set("auth_subject", "api-key")
			c.Next()
			return
		}

		tokenString, err := c.Cookie("jwt_token")
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			if tokenString == "" {
				logger.WithField("path", c.FullPath()).Debug("AuthRequired: no credentials")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
		}

		claims, err := utils.ValidateJWT(jwtSecret, tokenString)
		if err != nil {
			logger.WithError(err).Info("AuthRequired: invalid JWT token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}
		if claims.Role != utils.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: admin role required"})
			return
		}

		c.Set("auth_subject", claims.Subject)
		c.Next()
	}
}
