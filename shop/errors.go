package shop

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrInvalidConfig = xerrors.New("shop: invalid config")
	ErrDependencyNil = xerrors.New("shop: required dependency is nil")

	// ErrNotFound 店铺不存在
	ErrNotFound = xerrors.Wrap(xerrors.ErrNotFound, "shop")
)
