package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/princinho/userdirectory/dto"
)

const AccessTokenKey = "accessToken"

// AuthMiddleware requires a bearer token and stores it under AccessTokenKey.
// Verifying the token is left to the service call the handler makes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Response{
				StatusCode: http.StatusUnauthorized,
				Message:    "No token provided",
				Error:      "missing token",
			})
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Response{
				StatusCode: http.StatusUnauthorized,
				Message:    "No token provided",
				Error:      "missing token",
			})
			return
		}

		c.Set(AccessTokenKey, tokenStr)
		c.Next()
	}
}

func AccessToken(c *gin.Context) string {
	return c.GetString(AccessTokenKey)
}
