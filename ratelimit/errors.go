package ratelimit

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrConfigNil     = xerrors.New("ratelimit: config is nil")
	ErrInvalidConfig = xerrors.New("ratelimit: invalid config")
	ErrConnectorNil  = xerrors.New("ratelimit: redis connector is nil")
	ErrNotSupported  = xerrors.New("ratelimit: operation not supported")
	ErrKeyEmpty      = xerrors.New("ratelimit: key is empty")
	ErrInvalidLimit  = xerrors.New("ratelimit: invalid limit")
)
