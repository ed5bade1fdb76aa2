package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/seckill/clog"
)

// ClaimsKey gin.Context 中保存 Claims 的键
const ClaimsKey = "auth:claims"

func (a *jwtAuth) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := a.extractToken(c.Request)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		claims, err := a.ValidateToken(c.Request.Context(), token)
		if err != nil {
			a.logger.DebugContext(c.Request.Context(), "token rejected", clog.Error(err))
			abortUnauthorized(c, err)
			return
		}

		if a.inject != nil {
			ctx, err := a.inject(c.Request.Context(), claims)
			if err != nil {
				abortUnauthorized(c, err)
				return
			}
			c.Request = c.Request.WithContext(ctx)
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRoles 要求已认证用户拥有全部角色，需挂在 GinMiddleware 之后
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			abortUnauthorized(c, ErrMissingToken)
			return
		}
		for _, role := range roles {
			if !claims.HasRole(role) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "errorMsg": ErrForbidden.Error()})
				return
			}
		}
		c.Next()
	}
}

// GetClaims 从 gin.Context 获取 Claims
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errorMsg": err.Error()})
}
