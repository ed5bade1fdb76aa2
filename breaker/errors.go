package breaker

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrConfigNil     = xerrors.New("breaker: config is nil")
	ErrInvalidConfig = xerrors.New("breaker: invalid config")
	ErrKeyEmpty      = xerrors.New("breaker: key is empty")

	// ErrOpenState 熔断中，或半开状态下探测请求已满
	ErrOpenState = xerrors.WithCode(xerrors.New("breaker: circuit breaker is open"), "CIRCUIT_OPEN")
)
