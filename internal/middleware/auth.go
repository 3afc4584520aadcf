package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boxfi/boxd/internal/config"
	"github.com/boxfi/boxd/internal/service"
)

const (
	HeaderAPIKey       = "X-Box-Key"
	ContextOperatorKey = "operator"
)

// AuthMiddleware maps an API key to an operator. Role checks stay inside the
// engine; this layer only establishes which engine account is calling.
func AuthMiddleware(cfg *config.Config, om *service.OperatorManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			if cfg != nil && !cfg.Auth.RequireAPIKey {
				if op := om.DefaultOperator(); op != nil {
					c.Set(ContextOperatorKey, op)
					c.Next()
					return
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		op, ok := om.GetByAPIKey(apiKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		// 将操作方信息存入上下文
		c.Set(ContextOperatorKey, op)
		c.Next()
	}
}
