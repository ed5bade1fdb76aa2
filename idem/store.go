package idem

import (
	"context"
	"time"
)

// Store 幂等状态存储。一个键有三种状态：
// 不存在、执行中（Lock 成功）、已完成（SetResult 之后）。
type Store interface {
	// Lock 标记执行中，已被占用时返回 false
	Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error)

	// Unlock 仅当令牌匹配时释放执行中标记
	Unlock(ctx context.Context, key string, token LockToken) error

	// SetResult 保存结果并释放执行中标记
	SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error

	// GetResult 读取已完成的结果，不存在返回 ErrResultNotFound
	GetResult(ctx context.Context, key string) ([]byte, error)
}

// LockToken 执行中标记的持有者令牌
type LockToken string

const (
	lockSuffix   = ":lock"
	resultSuffix = ":result"
)
