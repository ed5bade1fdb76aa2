// Package server 是秒杀服务的 HTTP 边界：路由、认证与限流中间件、
// 以及领域错误到响应体的映射。
//
// 响应体沿用前端约定的 {success, errorMsg, data} 结构，
// 业务拒绝（库存不足、重复下单等）以 200 + success=false 返回。
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/seckill/auth"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/idem"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/trace"
	"github.com/ceyewan/seckill/xerrors"
)

// MetricRequestDuration HTTP 请求耗时，标签 method、path、status
const MetricRequestDuration = "http_request_duration_seconds"

// Admitter 秒杀准入，通常是 *seckill.Gate
type Admitter interface {
	Admit(ctx context.Context, voucherID int64) (*seckill.Admission, error)
	Preload(ctx context.Context, voucherID int64, stock int) error
}

// ShopService 店铺读写，通常是 *shop.Service
type ShopService interface {
	Get(ctx context.Context, id int64) (*catalog.Shop, error)
	Create(ctx context.Context, shop *catalog.Shop) error
	Update(ctx context.Context, shop *catalog.Shop) error
}

// VoucherStore 秒杀券持久化，通常是 *catalog.Catalog
type VoucherStore interface {
	CreateSeckillVoucher(ctx context.Context, v *catalog.Voucher, sv *catalog.SeckillVoucher) error
}

// Server HTTP 服务
type Server struct {
	cfg    *Config
	opt    *options
	logger clog.Logger

	engine  *gin.Engine
	latency metrics.Histogram
}

// New 创建 HTTP 服务，gate、shops、vouchers、auth 必须注入
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	switch {
	case o.gate == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "admitter")
	case o.shops == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "shop service")
	case o.vouchers == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "voucher store")
	case o.auth == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "authenticator")
	}

	s := &Server{cfg: cfg, opt: o, logger: o.logger}
	var err error
	s.latency, err = o.meter.Histogram(MetricRequestDuration, "http request latency", metrics.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	s.engine = s.routes()
	return s, nil
}

// UserContext 把 JWT 中的用户 ID 写入请求上下文，配合 auth.WithContextFunc 使用
func UserContext(ctx context.Context, claims *auth.Claims) (context.Context, error) {
	id, err := claims.UserID()
	if err != nil {
		return ctx, err
	}
	return seckill.WithUserID(ctx, id), nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), trace.GinMiddleware(s.cfg.ServiceName), s.observe())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(s.opt.meter.Handler()))
	r.GET("/shop/:id", s.getShop)

	authed := r.Group("", s.opt.auth.GinMiddleware())
	order := []gin.HandlerFunc{}
	if s.opt.limiter != nil && s.cfg.SeckillRate > 0 {
		limit := ratelimit.Limit{Rate: s.cfg.SeckillRate, Burst: s.cfg.SeckillBurst}
		order = append(order, ratelimit.GinMiddleware(s.opt.limiter, userKey, limit))
	}
	order = append(order, s.seckillVoucher)
	authed.POST("/voucher-order/seckill/:id", order...)

	admin := authed.Group("", auth.RequireRoles(s.cfg.AdminRole))
	admin.POST("/shop", s.idempotent(s.createShop)...)
	admin.PUT("/shop", s.updateShop)
	admin.POST("/voucher/seckill", s.idempotent(s.addSeckillVoucher)...)
	return r
}

// idempotent 为创建类接口挂上幂等中间件，幂等键按用户隔离
func (s *Server) idempotent(h gin.HandlerFunc) []gin.HandlerFunc {
	if s.opt.guard == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{s.opt.guard.GinMiddleware(idem.WithScope(userKey)), h}
}

// userKey 按登录用户限流，未登录时退回客户端 IP
func userKey(c *gin.Context) string {
	if claims, ok := auth.GetClaims(c); ok && claims.Subject != "" {
		return "user:" + claims.Subject
	}
	return ratelimit.ClientIP(c)
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		s.latency.Record(c.Request.Context(), elapsed.Seconds(),
			metrics.L("method", c.Request.Method),
			metrics.L("path", c.FullPath()),
			metrics.L("status", strconv.Itoa(status)),
		)
		s.logger.DebugContext(c.Request.Context(), "http request",
			clog.String("method", c.Request.Method),
			clog.String("path", c.Request.URL.Path),
			clog.Int("status", status),
			clog.Duration("elapsed", elapsed),
		)
	}
}

// Handler 返回路由，测试和自定义 http.Server 使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 cfg.Addr，ctx 取消后在 ShutdownTimeout 内优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.InfoContext(ctx, "http server listening", clog.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		if xerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return xerrors.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return xerrors.Wrap(err, "server: shutdown")
	}
	s.logger.InfoContext(ctx, "http server stopped")
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := map[string]string{}
	for _, conn := range s.opt.health {
		if err := conn.HealthCheck(ctx); err != nil {
			failing[conn.Name()] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
