package idgen

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
)

// redisCounter 基于 INCR 的计数后端，多实例共享
type redisCounter struct {
	conn   connector.RedisConnector
	logger clog.Logger
}

func (c *redisCounter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	client := c.conn.GetClient()
	n, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// 创建当日键的那次自增负责设置过期，失败不影响本次 ID
	if ttl > 0 && n == 1 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to set id day key ttl",
				clog.String("key", key), clog.Duration("ttl", ttl), clog.Error(err))
		}
	}
	return n, nil
}

// memoryCounter 进程内计数后端，仅用于单机运行和测试
type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{counts: make(map[string]int64)}
}

func (c *memoryCounter) incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}
