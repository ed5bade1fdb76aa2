package mq

import (
	"time"

	"github.com/ceyewan/seckill/clog"
)

// Middleware Handler 中间件
type Middleware func(Handler) Handler

// Chain 将多个中间件串联成一个，第一个最先执行
//
//	handler = mq.Chain(mq.WithRecover(logger), mq.WithLogging(logger))(handler)
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RetryConfig 应用层重试配置
type RetryConfig struct {
	// MaxRetries 最大重试次数（不含首次执行）
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig 默认重试配置
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Multiplier:     2.0,
}

// WithRetry 在单次投递内按指数退避重试，全部失败后把最后的错误交给上层
func WithRetry(cfg RetryConfig, logger clog.Logger) Middleware {
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = 2.0
	}
	return func(next Handler) Handler {
		return func(msg Message) error {
			var err error
			backoff := cfg.InitialBackoff
			for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
				if err = next(msg); err == nil {
					return nil
				}
				if attempt == cfg.MaxRetries {
					break
				}
				logger.WarnContext(msg.Context(), "message handler failed, retrying",
					clog.String("topic", msg.Topic()),
					clog.String("msg_id", msg.ID()),
					clog.Int("attempt", attempt+1),
					clog.Duration("backoff", backoff),
					clog.Error(err),
				)
				select {
				case <-msg.Context().Done():
					return msg.Context().Err()
				case <-time.After(backoff):
				}
				backoff = min(time.Duration(float64(backoff)*cfg.Multiplier), cfg.MaxBackoff)
			}
			return err
		}
	}
}

// WithLogging 记录每条消息的处理结果和耗时
func WithLogging(logger clog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(msg Message) error {
			start := time.Now()
			err := next(msg)
			fields := []clog.Field{
				clog.String("topic", msg.Topic()),
				clog.String("msg_id", msg.ID()),
				clog.Int("deliveries", msg.Deliveries()),
				clog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.ErrorContext(msg.Context(), "message handler failed", append(fields, clog.Error(err))...)
			} else {
				logger.DebugContext(msg.Context(), "message handled", fields...)
			}
			return err
		}
	}
}

// WithRecover 把 Handler 中的 panic 转换为 ErrPanicRecovered
func WithRecover(logger clog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(msg Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(msg.Context(), "message handler panic recovered",
						clog.String("topic", msg.Topic()),
						clog.String("msg_id", msg.ID()),
						clog.Any("panic", r),
					)
					err = ErrPanicRecovered
				}
			}()
			return next(msg)
		}
	}
}
