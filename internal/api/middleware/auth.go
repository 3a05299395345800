package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/auth"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// RequireAuth 校验 Bearer JWT，把 user_id 与 role 写入上下文
func RequireAuth(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "Bearer token required")
			return
		}

		claims, err := issuer.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// UserID 当前用户 ID
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// Role 当前用户角色
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"code":  apperr.CodeUnauthorized,
	})
}
