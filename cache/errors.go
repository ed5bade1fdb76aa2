package cache

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrConfigNil      = xerrors.New("cache: config is nil")
	ErrInvalidConfig  = xerrors.New("cache: invalid config")
	ErrStoreRequired  = xerrors.New("cache: store is required, use WithRedisConnector or WithStore")
	ErrLockerRequired = xerrors.New("cache: locker is required, use WithLocker")
	ErrInvalidRequest = xerrors.New("cache: invalid request")
	ErrWrongType      = xerrors.New("cache: key holds the wrong kind of value")
	ErrNotObject      = xerrors.New("cache: hash encoding requires an object value")
	ErrDecode         = xerrors.New("cache: decode failed")

	// ErrLockTimeout 重试 MaxRetries 次仍未读到缓存，也没有抢到重建锁
	ErrLockTimeout = xerrors.WithCode(xerrors.New("cache: lock wait timeout"), "LOCK_TIMEOUT")
)
