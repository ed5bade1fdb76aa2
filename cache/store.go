package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// Raw 远端存储中的原始条目
type Raw struct {
	// Type "none" | "string" | "hash"
	Type   string
	String []byte
	Fields map[string]string
}

const (
	typeNone   = "none"
	typeString = "string"
	typeHash   = "hash"
)

// Store 远端存储
type Store interface {
	// Load 按编码读取 key；EncodingAuto 时由存储判断实际类型
	// 类型与编码不符时返回 ErrWrongType
	Load(ctx context.Context, key string, enc Encoding) (Raw, error)

	// SaveString 写入 String，ttl 为 0 表示不过期
	SaveString(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SaveHash 整体替换 Hash，ttl 为 0 表示不过期
	SaveHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore 基于 Redis 连接器的存储
func NewRedisStore(conn connector.RedisConnector) Store {
	return &redisStore{client: conn.GetClient()}
}

func (s *redisStore) Load(ctx context.Context, key string, enc Encoding) (Raw, error) {
	if enc == EncodingAuto {
		typ, err := s.client.Type(ctx, key).Result()
		if err != nil {
			return Raw{}, xerrors.Wrapf(err, "type %s", key)
		}
		switch typ {
		case typeNone:
			return Raw{Type: typeNone}, nil
		case typeHash:
			enc = EncodingHash
		case typeString:
			enc = EncodingString
		default:
			return Raw{}, xerrors.Wrapf(ErrWrongType, "%s is %s", key, typ)
		}
	}

	if enc == EncodingHash {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return Raw{}, wrapRedisErr(err, key)
		}
		if len(fields) == 0 {
			return Raw{Type: typeNone}, nil
		}
		return Raw{Type: typeHash, Fields: fields}, nil
	}

	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Raw{Type: typeNone}, nil
	}
	if err != nil {
		return Raw{}, wrapRedisErr(err, key)
	}
	return Raw{Type: typeString, String: b}, nil
}

func (s *redisStore) SaveString(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) SaveHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func wrapRedisErr(err error, key string) error {
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return xerrors.Wrapf(ErrWrongType, "%s", key)
	}
	return xerrors.Wrapf(err, "load %s", key)
}
