package server

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrConfigNil     = xerrors.New("server: config is nil")
	ErrInvalidConfig = xerrors.New("server: invalid config")
	ErrDependencyNil = xerrors.New("server: required dependency is nil")
)

// 面向用户的固定文案
const (
	msgShopNotFound  = "店铺不存在！"
	msgShopIDMissing = "店铺id不能为空"
	msgBadRequest    = "参数错误"
	msgBusy          = "系统繁忙，请稍后重试"
	msgInternal      = "服务器异常"
)
