package idem

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

// errNotCacheable handler 返回了非 2xx，不记录结果
var errNotCacheable = xerrors.New("idem: response not cacheable")

type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// GinMiddleware 按请求头中的幂等键保护后续 handler。
// 没有幂等键的请求直接放行；重复请求回放第一次的 2xx 响应；
// 执行中的重复请求返回 409。存储不可用时放行。
func (i *Idempotency) GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc {
	mo := &middlewareOptions{}
	for _, opt := range opts {
		opt(mo)
	}

	return func(c *gin.Context) {
		raw := c.GetHeader(i.cfg.Header)
		if raw == "" {
			c.Next()
			return
		}
		key := c.Request.Method + ":" + c.FullPath() + ":"
		if mo.scope != nil {
			key += mo.scope(c) + ":"
		}
		key += raw

		ran := false
		result, replayed, err := i.Execute(c.Request.Context(), key, func(context.Context) ([]byte, error) {
			ran = true
			w := &captureWriter{ResponseWriter: c.Writer}
			c.Writer = w
			c.Next()

			status := w.Status()
			if status < 200 || status >= 300 {
				return nil, errNotCacheable
			}
			header := w.Header().Clone()
			header.Del("Content-Length")
			return json.Marshal(cachedResponse{Status: status, Header: header, Body: w.body.Bytes()})
		})

		switch {
		case replayed:
			if !replay(c, result) {
				i.logger.ErrorContext(c.Request.Context(), "decode idempotent response failed", clog.String("key", key))
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		case xerrors.Is(err, ErrInProgress):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "errorMsg": "请求处理中，请勿重复提交"})
		case err != nil && !ran:
			i.logger.WarnContext(c.Request.Context(), "idempotency store unavailable, passing through",
				clog.String("key", key), clog.Error(err))
			c.Next()
		case err != nil && !xerrors.Is(err, errNotCacheable):
			i.logger.ErrorContext(c.Request.Context(), "encode idempotent response failed",
				clog.String("key", key), clog.Error(err))
		}
	}
}

func replay(c *gin.Context, data []byte) bool {
	var resp cachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false
	}
	for name, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Writer.Header().Set("Idempotent-Replayed", "true")
	c.Status(resp.Status)
	_, _ = c.Writer.Write(resp.Body)
	c.Abort()
	return true
}

// captureWriter 在写出响应的同时保留一份响应体
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
