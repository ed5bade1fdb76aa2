package idem

import "github.com/ceyewan/seckill/xerrors"

// CodeInProgress 同一幂等键的请求仍在执行
const CodeInProgress = "IDEMPOTENT_IN_PROGRESS"

var (
	ErrConfigNil     = xerrors.New("idem: config is nil")
	ErrInvalidConfig = xerrors.New("idem: invalid config")
	ErrConnectorNil  = xerrors.New("idem: redis connector is required")
	ErrKeyEmpty      = xerrors.New("idem: key is empty")

	// ErrInProgress 另一个持有相同键的请求尚未完成
	ErrInProgress = xerrors.WithCode(xerrors.New("idem: request in progress"), CodeInProgress)

	// ErrResultNotFound 没有已完成的结果，仅 Store 实现使用
	ErrResultNotFound = xerrors.New("idem: result not found")
)
