package catalog

import "github.com/ceyewan/seckill/xerrors"

// CodeTransientPersistence 可重试的落库失败
const CodeTransientPersistence = "TRANSIENT_PERSISTENCE"

var (
	ErrDBNil = xerrors.New("catalog: db is nil")

	// ErrNotFound 实体不存在
	ErrNotFound = xerrors.Wrap(xerrors.ErrNotFound, "catalog")

	// ErrInvalidArgument 参数缺失或非法
	ErrInvalidArgument = xerrors.Wrap(xerrors.ErrInvalidInput, "catalog")

	// ErrStockExhausted 持久化库存已为 0，条件扣减未命中，不可重试
	ErrStockExhausted = xerrors.New("catalog: durable stock exhausted")

	// ErrTransientPersistence 事务失败，可以重试；用 errors.Is 按错误码匹配
	ErrTransientPersistence = xerrors.WithCode(xerrors.New("catalog: transient persistence failure"), CodeTransientPersistence)
)

// errDuplicate 事务内发现已有订单，用于回滚扣减
var errDuplicate = xerrors.New("catalog: order already exists")
