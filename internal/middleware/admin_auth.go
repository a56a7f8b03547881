package middleware

import (
	"net/http"
	"strings"

	"raffle-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware 管理员认证中间件
type AdminAuthMiddleware struct {
	logger    *logrus.Logger
	jwtSecret []byte
}

// NewAdminAuthMiddleware 创建管理员认证中间件
func NewAdminAuthMiddleware(logger *logrus.Logger, jwtSecret []byte) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

// RequireAdminAuth 要求管理员认证
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "Authentication required", "missing Authorization header", nil)
			return
		}

		// 检查 Bearer 格式
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Invalid authorization format, need Bearer token", "invalid Authorization format", nil)
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" {
			a.reject(c, http.StatusUnauthorized, "EMPTY_TOKEN", "Empty token", "empty token", nil)
			return
		}

		claims, err := handlers.ValidateAdminJWTToken(a.jwtSecret, tokenString)
		if err != nil {
			a.reject(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", "invalid token", logrus.Fields{"error": err.Error()})
			return
		}

		// 检查角色
		if claims.Role != "admin" {
			a.reject(c, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Insufficient permissions", "insufficient permissions", logrus.Fields{"role": claims.Role})
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}

func (a *AdminAuthMiddleware) reject(c *gin.Context, status int, code, message, reason string, extra logrus.Fields) {
	fields := logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}
	for k, v := range extra {
		fields[k] = v
	}
	a.logger.WithFields(fields).Warn("Admin auth failed - " + reason)

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
