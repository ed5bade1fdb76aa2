package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// releaseScript 仅当 token 匹配时删除，避免误删他人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	conn   connector.RedisConnector
	cfg    *Config
	logger clog.Logger
	rec    *recorder

	mu     sync.Mutex
	tokens map[string]string
}

func newRedis(conn connector.RedisConnector, cfg *Config, logger clog.Logger, rec *recorder) *redisLocker {
	return &redisLocker{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		rec:    rec,
		tokens: make(map[string]string),
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	o := l.cfg.lockOptions(opts)
	ok, err := l.acquire(ctx, key, o.ttl)
	l.rec.acquire(ctx, "try_lock", ok)
	return ok, err
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	o := l.cfg.lockOptions(opts)
	deadline := time.NewTimer(o.wait)
	defer deadline.Stop()

	for {
		ok, err := l.acquire(ctx, key, o.ttl)
		if err != nil {
			l.rec.acquire(ctx, "lock", false)
			return err
		}
		if ok {
			l.rec.acquire(ctx, "lock", true)
			return nil
		}

		select {
		case <-ctx.Done():
			l.rec.acquire(ctx, "lock", false)
			return ctx.Err()
		case <-deadline.C:
			l.rec.acquire(ctx, "lock", false)
			return xerrors.Wrapf(ErrLockTimeout, "key: %s, waited: %s", key, o.wait)
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

func (l *redisLocker) acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	_, held := l.tokens[key]
	l.mu.Unlock()
	if held {
		return false, nil
	}

	token, err := newToken()
	if err != nil {
		return false, err
	}

	ok, err := l.conn.GetClient().SetNX(ctx, l.cfg.Prefix+key, token, ttl).Result()
	if err != nil {
		return false, xerrors.Wrap(err, "dlock: setnx")
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.Duration("ttl", ttl))
	return true, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	token, held := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !held {
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}

	n, err := releaseScript.Run(ctx, l.conn.GetClient(), []string{l.cfg.Prefix + key}, token).Int64()
	if err != nil {
		l.rec.release(ctx, "error")
		return xerrors.Wrap(err, "dlock: release")
	}
	if n == 0 {
		l.rec.release(ctx, "lost")
		l.logger.WarnContext(ctx, "lock expired before release", clog.String("key", key))
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	l.rec.release(ctx, "success")
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

// Close 不拥有底层连接，no-op
func (l *redisLocker) Close() error {
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "dlock: generate token")
	}
	return hex.EncodeToString(b), nil
}
