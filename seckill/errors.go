package seckill

import "github.com/ceyewan/seckill/xerrors"

// 错误码，HTTP 层据此区分响应
const (
	CodeVoucherNotFound = "VOUCHER_NOT_FOUND"
	CodeNotStarted      = "NOT_STARTED"
	CodeEnded           = "ENDED"
	CodeStockExhausted  = "STOCK_EXHAUSTED"
	CodeDuplicateOrder  = "DUPLICATE_ORDER"
	CodeLockTimeout     = "LOCK_TIMEOUT"
	CodeUnauthenticated = "UNAUTHENTICATED"
)

// 面向用户的拒绝原因，Message 返回的文案直接展示给用户
var (
	ErrVoucherNotFound = xerrors.WithCode(xerrors.New("优惠券不存在"), CodeVoucherNotFound)
	ErrNotStarted      = xerrors.WithCode(xerrors.New("还没到秒杀时间哟！"), CodeNotStarted)
	ErrEnded           = xerrors.WithCode(xerrors.New("来晚啦秒杀时间已结束！"), CodeEnded)
	ErrStockExhausted  = xerrors.WithCode(xerrors.New("库存不足"), CodeStockExhausted)
	ErrDuplicateOrder  = xerrors.WithCode(xerrors.New("不能重复下单"), CodeDuplicateOrder)
	ErrLockTimeout     = xerrors.WithCode(xerrors.New("系统繁忙，请稍后重试"), CodeLockTimeout)
	ErrUnauthenticated = xerrors.WithCode(xerrors.New("请先登录"), CodeUnauthenticated)
)

var (
	ErrConfigNil     = xerrors.New("seckill: config is nil")
	ErrInvalidConfig = xerrors.New("seckill: invalid config")
	ErrDependencyNil = xerrors.New("seckill: required dependency is nil")
	ErrUnknownResult = xerrors.New("seckill: unknown admission script result")
)

// Message 返回错误链上面向用户的文案，非拒绝类错误返回空串
func Message(err error) string {
	for _, target := range []error{
		ErrVoucherNotFound, ErrNotStarted, ErrEnded,
		ErrStockExhausted, ErrDuplicateOrder, ErrLockTimeout, ErrUnauthenticated,
	} {
		if xerrors.Is(err, target) {
			return xerrors.Unwrap(target).Error()
		}
	}
	return ""
}
