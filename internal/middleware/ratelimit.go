package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boxfi/boxd/internal/model"
	"github.com/boxfi/boxd/internal/service"
)

func RateLimitMiddleware(om *service.OperatorManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 获取当前操作方 (必须在 AuthMiddleware 之后使用)
		opVal, exists := c.Get(ContextOperatorKey)
		if !exists {
			// 如果没有操作方信息，理论上应该由 AuthMiddleware 拦截，但为了安全起见
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		op := opVal.(*model.Operator)

		// 2. 获取限流器
		limiter := om.GetLimiter(op.ID)
		if limiter == nil {
			c.Next()
			return
		}

		// 3. 尝试获取令牌
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
