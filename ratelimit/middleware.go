package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// KeyFunc 从请求中提取限流键，返回空串表示不限流
type KeyFunc func(*gin.Context) string

// ClientIP 以客户端 IP 作为限流键
func ClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// GinMiddleware 创建 Gin 限流中间件，被限流返回 429
//
// 限流器出错时放行。
//
//	r.POST("/voucher-order/seckill/:id",
//		ratelimit.GinMiddleware(limiter, userKey, ratelimit.Limit{Rate: 5, Burst: 5}),
//		handler)
func GinMiddleware(limiter Limiter, keyFunc KeyFunc, limit Limit) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" || !limit.valid() {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil || allowed {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":  false,
			"errorMsg": "请求过于频繁，请稍后再试",
		})
	}
}
