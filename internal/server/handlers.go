package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/xerrors"
)

// Result 统一响应体
type Result struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func ok(data any) Result {
	return Result{Success: true, Data: data}
}

func failure(msg string) Result {
	return Result{ErrorMsg: msg}
}

// fail 把领域错误映射为响应：
// 未登录 401，锁超时或熔断 503，业务拒绝 200，参数错误 400，其余 500
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case xerrors.Is(err, seckill.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, failure(seckill.Message(err)))
	case xerrors.Is(err, seckill.ErrLockTimeout), xerrors.Is(err, breaker.ErrOpenState):
		c.JSON(http.StatusServiceUnavailable, failure(msgBusy))
	case seckill.Message(err) != "":
		c.JSON(http.StatusOK, failure(seckill.Message(err)))
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, failure(msgBadRequest))
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			clog.String("path", c.FullPath()), clog.Error(err))
		c.JSON(http.StatusInternalServerError, failure(msgInternal))
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// POST /voucher-order/seckill/:id
func (s *Server) seckillVoucher(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		c.JSON(http.StatusOK, failure(seckill.Message(seckill.ErrVoucherNotFound)))
		return
	}
	adm, err := s.opt.gate.Admit(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ok(adm.OrderID))
}

// GET /shop/:id
func (s *Server) getShop(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		c.JSON(http.StatusOK, failure(msgShopNotFound))
		return
	}
	shop, err := s.opt.shops.Get(c.Request.Context(), id)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		c.JSON(http.StatusOK, failure(msgShopNotFound))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ok(shop))
}

// POST /shop
func (s *Server) createShop(c *gin.Context) {
	var shop catalog.Shop
	if err := c.ShouldBindJSON(&shop); err != nil {
		c.JSON(http.StatusBadRequest, failure(msgBadRequest))
		return
	}
	shop.ID = 0
	if err := s.opt.shops.Create(c.Request.Context(), &shop); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ok(shop.ID))
}

// PUT /shop
func (s *Server) updateShop(c *gin.Context) {
	var shop catalog.Shop
	if err := c.ShouldBindJSON(&shop); err != nil {
		c.JSON(http.StatusBadRequest, failure(msgBadRequest))
		return
	}
	if shop.ID <= 0 {
		c.JSON(http.StatusOK, failure(msgShopIDMissing))
		return
	}
	err := s.opt.shops.Update(c.Request.Context(), &shop)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		c.JSON(http.StatusOK, failure(msgShopNotFound))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ok(nil))
}

type seckillVoucherRequest struct {
	ShopID      int64     `json:"shopId" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	SubTitle    string    `json:"subTitle"`
	Rules       string    `json:"rules"`
	PayValue    int64     `json:"payValue"`
	ActualValue int64     `json:"actualValue"`
	Stock       int       `json:"stock" binding:"min=0"`
	BeginTime   time.Time `json:"beginTime" binding:"required"`
	EndTime     time.Time `json:"endTime" binding:"required"`
}

// POST /voucher/seckill 写入秒杀券后预热快路径库存
func (s *Server) addSeckillVoucher(c *gin.Context) {
	var req seckillVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failure(msgBadRequest))
		return
	}
	ctx := c.Request.Context()
	v := &catalog.Voucher{
		ShopID:      req.ShopID,
		Title:       req.Title,
		SubTitle:    req.SubTitle,
		Rules:       req.Rules,
		PayValue:    req.PayValue,
		ActualValue: req.ActualValue,
	}
	sv := &catalog.SeckillVoucher{Stock: req.Stock, BeginTime: req.BeginTime, EndTime: req.EndTime}
	if err := s.opt.vouchers.CreateSeckillVoucher(ctx, v, sv); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.opt.gate.Preload(ctx, v.ID, sv.Stock); err != nil {
		s.fail(c, xerrors.Wrapf(err, "preload voucher %d", v.ID))
		return
	}
	c.JSON(http.StatusOK, ok(v.ID))
}
