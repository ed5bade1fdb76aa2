package dlock

import "github.com/ceyewan/seckill/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("dlock: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("dlock: invalid config")

	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("dlock: connector is nil")

	// ErrLockNotHeld 当前 Locker 未持有该锁
	ErrLockNotHeld = xerrors.New("dlock: lock not held")

	// ErrLockTimeout Lock 在最长等待时间内未能获取锁
	ErrLockTimeout = xerrors.New("dlock: lock wait timeout")

	// ErrOwnershipLost 释放时发现锁已过期或被他人持有
	ErrOwnershipLost = xerrors.New("dlock: ownership lost")
)
