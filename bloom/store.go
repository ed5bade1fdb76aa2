package bloom

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/seckill/connector"
)

// redisBits 每种类型一个 bitmap 键，多实例共享
type redisBits struct {
	conn connector.RedisConnector
	key  string
}

func (b *redisBits) set(ctx context.Context, offsets []uint64) error {
	_, err := b.conn.GetClient().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, off := range offsets {
			pipe.SetBit(ctx, b.key, int64(off), 1)
		}
		return nil
	})
	return err
}

func (b *redisBits) test(ctx context.Context, offsets []uint64) (bool, error) {
	cmds := make([]*redis.IntCmd, len(offsets))
	_, err := b.conn.GetClient().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, off := range offsets {
			cmds[i] = pipe.GetBit(ctx, b.key, int64(off))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// memoryBits 进程内位图，单机运行和测试用
type memoryBits struct {
	mu    sync.RWMutex
	words []uint64
}

func newMemoryBits(m uint64) *memoryBits {
	return &memoryBits{words: make([]uint64, (m+63)/64)}
}

func (b *memoryBits) set(_ context.Context, offsets []uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, off := range offsets {
		b.words[off/64] |= 1 << (off % 64)
	}
	return nil
}

func (b *memoryBits) test(_ context.Context, offsets []uint64) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, off := range offsets {
		if b.words[off/64]&(1<<(off%64)) == 0 {
			return false, nil
		}
	}
	return true, nil
}
