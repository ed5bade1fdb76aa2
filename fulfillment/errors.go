package fulfillment

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrConfigNil      = xerrors.New("fulfillment: config is nil")
	ErrInvalidConfig  = xerrors.New("fulfillment: invalid config")
	ErrDependencyNil  = xerrors.New("fulfillment: required dependency is nil")
	ErrAlreadyStarted = xerrors.New("fulfillment: consumer already started")
	ErrNotStarted     = xerrors.New("fulfillment: consumer not started")
)
