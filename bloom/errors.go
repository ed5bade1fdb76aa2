package bloom

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrInvalidConfig = xerrors.New("bloom: invalid config")
	ErrConnectorNil  = xerrors.New("bloom: redis connector is nil")
)
