package connector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

type kafkaConnector struct {
	cfg      *KafkaConfig
	client   *kgo.Client
	logger   clog.Logger
	recorder *connectRecorder
	healthy  atomic.Bool
	mu       sync.Mutex
}

// NewKafka 创建 Kafka 连接器
//
// 配置 ConsumerGroup 时客户端同时作为消费者组成员，提交由调用方手动完成。
func NewKafka(cfg *KafkaConfig, opts ...Option) (KafkaConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "kafka config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &kafkaConnector{
		cfg:      cfg,
		logger:   o.logger.With(clog.String("connector", "kafka"), clog.String("name", cfg.Name)),
		recorder: newConnectRecorder(o.meter, "kafka", cfg.Name),
	}, nil
}

func (c *kafkaConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(c.cfg.Seed...),
		kgo.ClientID(c.cfg.ClientID),
		kgo.RequestTimeoutOverhead(c.cfg.RequestTimeout),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.WithLogger(&kgoLogger{logger: c.logger}),
	}
	if c.cfg.ConsumerGroup != "" {
		kopts = append(kopts,
			kgo.ConsumerGroup(c.cfg.ConsumerGroup),
			kgo.ConsumeTopics(c.cfg.Topics...),
			kgo.DisableAutoCommit(),
		)
	}

	c.logger.Info("attempting to connect to kafka", clog.Any("seeds", c.cfg.Seed))
	client, err := kgo.NewClient(kopts...)
	if err == nil {
		if err = client.Ping(ctx); err != nil {
			client.Close()
		}
	}
	c.recorder.record(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to kafka", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "kafka connector[%s]: %v", c.cfg.Name, err)
	}

	c.client = client
	c.healthy.Store(true)
	c.logger.Info("successfully connected to kafka")
	return nil
}

func (c *kafkaConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}
	c.logger.Info("closing kafka connection")
	c.client.Close()
	c.client = nil
	return nil
}

func (c *kafkaConnector) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		c.healthy.Store(false)
		return ErrNotConnected
	}
	if err := client.Ping(ctx); err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "kafka connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *kafkaConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *kafkaConnector) Name() string { return c.cfg.Name }

func (c *kafkaConnector) GetClient() *kgo.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// kgoLogger 把 franz-go 的日志转到 clog
type kgoLogger struct {
	logger clog.Logger
}

func (l *kgoLogger) Level() kgo.LogLevel {
	return kgo.LogLevelWarn
}

func (l *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]clog.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fields = append(fields, clog.Any(fmt.Sprint(keyvals[i]), keyvals[i+1]))
	}
	switch level {
	case kgo.LogLevelError:
		l.logger.Error(msg, fields...)
	case kgo.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	case kgo.LogLevelInfo:
		l.logger.Info(msg, fields...)
	default:
		l.logger.Debug(msg, fields...)
	}
}
