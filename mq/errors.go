package mq

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrConfigNil          = xerrors.New("mq: config is nil")
	ErrInvalidConfig      = xerrors.New("mq: invalid config")
	ErrConnectorNil       = xerrors.New("mq: connector is required for driver")
	ErrClosed             = xerrors.New("mq: client closed")
	ErrSubscriptionClosed = xerrors.New("mq: subscription closed")
	ErrPanicRecovered     = xerrors.New("mq: handler panic recovered")
)
