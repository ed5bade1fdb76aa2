// Package dlock 提供分布式互斥锁。
//
// 两种后端遵循同一契约：
//   - redis: SET key token NX PX ttl 加锁，Lua 脚本校验 token 后删除。
//     不续期，业务执行时间超过 TTL 时锁会提前失效，Unlock 返回 ErrOwnershipLost
//   - etcd: 基于 concurrency.Session 的租约锁，会话保活期间自动续约
//
// 一个 Locker 对同一个 key 在进程内同时只持有一把锁；
// 同进程的其他调用方与其他进程一样视为竞争者。
//
//	locker, _ := dlock.New(&dlock.Config{Driver: dlock.DriverRedis},
//		dlock.WithRedisConnector(redisConn),
//		dlock.WithLogger(logger),
//	)
//	ok, err := locker.TryLock(ctx, "shop:1", dlock.WithTTL(10*time.Second))
//	if ok {
//		defer locker.Unlock(ctx, "shop:1")
//	}
package dlock

import (
	"context"

	"github.com/ceyewan/seckill/metrics"
)

// Locker 定义了分布式锁的核心行为
type Locker interface {
	// Lock 阻塞式加锁，最多等待 WithWait 指定的时长（默认 Config.MaxWait）
	// 超时返回 ErrLockTimeout，上下文取消返回 ctx.Err()
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞式尝试加锁
	// 成功获取锁返回 true, nil；锁已被占用返回 false, nil
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放锁，只有持有者才能释放
	Unlock(ctx context.Context, key string) error

	// Close 释放底层资源（etcd 会话），不关闭连接器
	Close() error
}

// New 按 Config.Driver 创建 Locker
func New(cfg *Config, opts ...Option) (Locker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts)
	rec, err := newRecorder(opt.meter, string(cfg.Driver))
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverEtcd:
		if opt.etcdConnector == nil {
			return nil, ErrConnectorNil
		}
		return newEtcd(opt.etcdConnector, cfg, opt.logger, rec)
	default:
		if opt.redisConnector == nil {
			return nil, ErrConnectorNil
		}
		return newRedis(opt.redisConnector, cfg, opt.logger, rec), nil
	}
}

// recorder 锁操作指标
type recorder struct {
	backend  string
	acquired metrics.Counter
	failed   metrics.Counter
	released metrics.Counter
}

func newRecorder(meter metrics.Meter, backend string) (*recorder, error) {
	acquired, err := meter.Counter(MetricLockAcquired, "locks acquired")
	if err != nil {
		return nil, err
	}
	failed, err := meter.Counter(MetricLockFailed, "lock attempts that did not acquire")
	if err != nil {
		return nil, err
	}
	released, err := meter.Counter(MetricLockReleased, "locks released")
	if err != nil {
		return nil, err
	}
	return &recorder{backend: backend, acquired: acquired, failed: failed, released: released}, nil
}

func (r *recorder) acquire(ctx context.Context, op string, ok bool) {
	labels := []metrics.Label{metrics.L(LabelBackend, r.backend), metrics.L(metrics.LabelOperation, op)}
	if ok {
		r.acquired.Inc(ctx, labels...)
		return
	}
	r.failed.Inc(ctx, labels...)
}

func (r *recorder) release(ctx context.Context, result string) {
	r.released.Inc(ctx, metrics.L(LabelBackend, r.backend), metrics.L(metrics.LabelResult, result))
}
