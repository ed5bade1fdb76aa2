package idem

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, g *Idempotency, calls *atomic.Int32, block chan struct{}) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	scope := WithScope(func(c *gin.Context) string { return c.GetHeader("X-User") })
	r.POST("/voucher/seckill", g.GinMiddleware(scope), func(c *gin.Context) {
		n := calls.Add(1)
		if block != nil {
			<-block
		}
		c.Header("X-Voucher", "created")
		c.JSON(http.StatusOK, gin.H{"success": true, "data": n})
	})
	r.POST("/shop", g.GinMiddleware(scope), func(c *gin.Context) {
		calls.Add(1)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
	})
	return r
}

func post(r http.Handler, path, key, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGinMiddlewareReplays(t *testing.T) {
	for name, g := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			r := newRouter(t, g, &calls, nil)

			first := post(r, "/voucher/seckill", "k1", "u1")
			require.Equal(t, http.StatusOK, first.Code)
			assert.JSONEq(t, `{"success":true,"data":1}`, first.Body.String())

			again := post(r, "/voucher/seckill", "k1", "u1")
			assert.Equal(t, http.StatusOK, again.Code)
			assert.JSONEq(t, first.Body.String(), again.Body.String())
			assert.Equal(t, "created", again.Header().Get("X-Voucher"))
			assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
			assert.Equal(t, int32(1), calls.Load())

			post(r, "/voucher/seckill", "k1", "u2")
			post(r, "/voucher/seckill", "", "u1")
			post(r, "/voucher/seckill", "", "u1")
			assert.Equal(t, int32(4), calls.Load())
		})
	}
}

func TestGinMiddlewareSkipsFailures(t *testing.T) {
	for name, g := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			r := newRouter(t, g, &calls, nil)

			assert.Equal(t, http.StatusInternalServerError, post(r, "/shop", "k", "u").Code)
			assert.Equal(t, http.StatusInternalServerError, post(r, "/shop", "k", "u").Code)
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestGinMiddlewareConflict(t *testing.T) {
	g, err := New(&Config{Driver: DriverMemory})
	require.NoError(t, err)
	var calls atomic.Int32
	block := make(chan struct{})
	r := newRouter(t, g, &calls, block)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- post(r, "/voucher/seckill", "k", "u") }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusConflict, post(r, "/voucher/seckill", "k", "u").Code)
	close(block)
	assert.Equal(t, http.StatusOK, (<-done).Code)
}
