package dlock

import "time"

// lockOptions Lock/TryLock 的运行时参数
type lockOptions struct {
	ttl  time.Duration
	wait time.Duration
}

// LockOption Lock 操作的选项函数
type LockOption func(*lockOptions)

// WithTTL 覆盖配置中的 DefaultTTL
//
//	locker.TryLock(ctx, "key", dlock.WithTTL(10*time.Second))
func WithTTL(d time.Duration) LockOption {
	return func(o *lockOptions) {
		o.ttl = d
	}
}

// WithWait 覆盖 Lock 的最长等待时间，对 TryLock 无效
func WithWait(d time.Duration) LockOption {
	return func(o *lockOptions) {
		o.wait = d
	}
}

func (c *Config) lockOptions(opts []LockOption) *lockOptions {
	o := &lockOptions{ttl: c.DefaultTTL, wait: c.MaxWait}
	for _, opt := range opts {
		opt(o)
	}
	if o.ttl <= 0 {
		o.ttl = c.DefaultTTL
	}
	if o.wait <= 0 {
		o.wait = c.MaxWait
	}
	return o
}
