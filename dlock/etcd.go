package dlock

import (
	"context"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// etcdLocker 租约锁，会话保活期间持续续约，进程崩溃后租约到期自动释放
type etcdLocker struct {
	client  *clientv3.Client
	session *concurrency.Session
	cfg     *Config
	logger  clog.Logger
	rec     *recorder

	mu    sync.Mutex
	locks map[string]*etcdLockEntry
}

type etcdLockEntry struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	owned   bool // 专用会话，释放锁时一并关闭
}

func newEtcd(conn connector.EtcdConnector, cfg *Config, logger clog.Logger, rec *recorder) (Locker, error) {
	client := conn.GetClient()
	if client == nil {
		return nil, ErrConnectorNil
	}
	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds(cfg.DefaultTTL)))
	if err != nil {
		return nil, xerrors.Wrap(err, "dlock: create etcd session")
	}
	return &etcdLocker{
		client:  client,
		session: session,
		cfg:     cfg,
		logger:  logger,
		rec:     rec,
		locks:   make(map[string]*etcdLockEntry),
	}, nil
}

func ttlSeconds(d time.Duration) int {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}

func (l *etcdLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	o := l.cfg.lockOptions(opts)
	err := l.lock(ctx, key, o.ttl, true)
	switch {
	case err == nil:
		l.rec.acquire(ctx, "try_lock", true)
		return true, nil
	case xerrors.Is(err, concurrency.ErrLocked):
		l.rec.acquire(ctx, "try_lock", false)
		return false, nil
	default:
		l.rec.acquire(ctx, "try_lock", false)
		return false, err
	}
}

func (l *etcdLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	o := l.cfg.lockOptions(opts)
	waitCtx, cancel := context.WithTimeout(ctx, o.wait)
	defer cancel()

	err := l.lock(waitCtx, key, o.ttl, false)
	l.rec.acquire(ctx, "lock", err == nil)
	if err != nil && ctx.Err() == nil && xerrors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return xerrors.Wrapf(ErrLockTimeout, "key: %s, waited: %s", key, o.wait)
	}
	return err
}

func (l *etcdLocker) lock(ctx context.Context, key string, ttl time.Duration, try bool) error {
	// 同一会话上的 Mutex 可重入，进程内竞争者先在本地占位排队
	for !l.reserve(key) {
		if try {
			return concurrency.ErrLocked
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}

	session := l.session
	owned := ttl != l.cfg.DefaultTTL
	if owned {
		s, err := concurrency.NewSession(l.client, concurrency.WithTTL(ttlSeconds(ttl)))
		if err != nil {
			l.cancelReservation(key)
			return xerrors.Wrap(err, "dlock: create etcd session")
		}
		session = s
	}

	mutex := concurrency.NewMutex(session, l.cfg.Prefix+key)
	var err error
	if try {
		err = mutex.TryLock(ctx)
	} else {
		err = mutex.Lock(ctx)
	}
	if err != nil {
		l.cancelReservation(key)
		if owned {
			_ = session.Close()
		}
		if xerrors.Is(err, concurrency.ErrLocked) {
			return err
		}
		return xerrors.Wrap(err, "dlock: etcd lock")
	}

	l.mu.Lock()
	l.locks[key] = &etcdLockEntry{mutex: mutex, session: session, owned: owned}
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.Duration("ttl", ttl))
	return nil
}

// reserve 在本地占位，占位期间其他调用方视为锁已被持有
func (l *etcdLocker) reserve(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false
	}
	l.locks[key] = nil
	return true
}

func (l *etcdLocker) cancelReservation(key string) {
	l.mu.Lock()
	delete(l.locks, key)
	l.mu.Unlock()
}

func (l *etcdLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry := l.locks[key]
	if entry != nil {
		delete(l.locks, key)
	}
	l.mu.Unlock()
	if entry == nil {
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}

	err := entry.mutex.Unlock(ctx)
	if entry.owned {
		_ = entry.session.Close()
	}
	if err != nil {
		l.rec.release(ctx, "error")
		return xerrors.Wrap(err, "dlock: etcd unlock")
	}
	l.rec.release(ctx, "success")
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

// Close 关闭默认会话，会话上的锁随租约撤销一并释放
func (l *etcdLocker) Close() error {
	return l.session.Close()
}
