package idem

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// KEYS[1] 锁  ARGV[1] 令牌
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// KEYS[1] 锁  KEYS[2] 结果  ARGV[1] 令牌  ARGV[2] 结果  ARGV[3] 毫秒 TTL
var setResultScript = redis.NewScript(`
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('DEL', KEYS[1])
end
return 1
`)

type redisStore struct {
	conn   connector.RedisConnector
	prefix string
}

// NewRedisStore 基于 Redis 的存储，锁值为随机令牌
func NewRedisStore(conn connector.RedisConnector, prefix string) Store {
	return &redisStore{conn: conn, prefix: prefix}
}

func (s *redisStore) Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error) {
	token := LockToken(uuid.NewString())
	ok, err := s.conn.GetClient().SetNX(ctx, s.prefix+key+lockSuffix, string(token), ttl).Result()
	if err != nil {
		return "", false, xerrors.Wrap(err, "idem: acquire lock")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *redisStore) Unlock(ctx context.Context, key string, token LockToken) error {
	err := unlockScript.Run(ctx, s.conn.GetClient(), []string{s.prefix + key + lockSuffix}, string(token)).Err()
	return xerrors.Wrap(err, "idem: release lock")
}

func (s *redisStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error {
	keys := []string{s.prefix + key + lockSuffix, s.prefix + key + resultSuffix}
	err := setResultScript.Run(ctx, s.conn.GetClient(), keys, string(token), val, ttl.Milliseconds()).Err()
	return xerrors.Wrap(err, "idem: set result")
}

func (s *redisStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	val, err := s.conn.GetClient().Get(ctx, s.prefix+key+resultSuffix).Bytes()
	if xerrors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: get result")
	}
	return val, nil
}
