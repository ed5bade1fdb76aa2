package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

// bucket 包装 rate.Limiter 并记录最后访问时间
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func (b *bucket) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}

// standaloneLimiter 进程内令牌桶，同一 key 不同规则各自成桶
type standaloneLimiter struct {
	cfg     *StandaloneConfig
	logger  clog.Logger
	rec     *recorder
	buckets sync.Map // map[string]*bucket
	stopCh  chan struct{}
	once    sync.Once
}

func newStandalone(cfg *StandaloneConfig, logger clog.Logger, rec *recorder) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:    cfg,
		logger: logger,
		rec:    rec,
		stopCh: make(chan struct{}),
	}
	go l.cleanup()
	logger.Info("standalone rate limiter created",
		clog.Duration("cleanup_interval", cfg.CleanupInterval),
		clog.Duration("idle_timeout", cfg.IdleTimeout),
	)
	return l
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.valid() {
		return false, ErrInvalidLimit
	}
	if n <= 0 {
		return false, xerrors.Wrapf(ErrInvalidLimit, "n must be positive, got %d", n)
	}

	now := time.Now()
	b := l.bucket(key, limit)
	b.touch(now)
	allowed := b.limiter.AllowN(now, n)
	l.rec.observe(ctx, allowed, nil)

	l.logger.DebugContext(ctx, "rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int("requested", n),
	)
	return allowed, nil
}

func (l *standaloneLimiter) Wait(ctx context.Context, key string, limit Limit) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if !limit.valid() {
		return ErrInvalidLimit
	}

	b := l.bucket(key, limit)
	b.touch(time.Now())
	err := b.limiter.Wait(ctx)
	l.rec.observe(ctx, err == nil, nil)
	return err
}

// bucket 获取或创建 key 对应的令牌桶
func (l *standaloneLimiter) bucket(key string, limit Limit) *bucket {
	cacheKey := key + ":" + strconv.FormatFloat(limit.Rate, 'g', -1, 64) + ":" + strconv.Itoa(limit.Burst)
	if v, ok := l.buckets.Load(cacheKey); ok {
		return v.(*bucket)
	}
	b := &bucket{limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
	b.touch(time.Now())
	actual, _ := l.buckets.LoadOrStore(cacheKey, b)
	return actual.(*bucket)
}

// cleanup 定期清理空闲的令牌桶
func (l *standaloneLimiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) evictIdle(now time.Time) int {
	count := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		if now.Sub(time.Unix(0, b.lastSeen.Load())) > l.cfg.IdleTimeout {
			l.buckets.Delete(key)
			count++
		}
		return true
	})
	if count > 0 {
		l.logger.Debug("cleaned up idle limiters", clog.Int("count", count))
	}
	return count
}

func (l *standaloneLimiter) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	return nil
}
