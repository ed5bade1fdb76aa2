// Package connector 统一管理外部依赖的连接生命周期。
//
// 约定：
//   - NewXXX 只创建连接器，Connect 时才建立连接；Connect 幂等
//   - 谁创建谁关闭，组件（cache、dlock、mq 等）只借用 Connector，不调用 Close
//   - 应用按 LIFO 释放：先停组件，再关连接器
//
//	conn, _ := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//	    return err
//	}
//	client := conn.GetClient()
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
)

// Connector 所有连接器的通用行为，方法均并发安全
type Connector interface {
	// Connect 建立连接，重复调用直接返回 nil
	Connect(ctx context.Context) error

	// Close 释放连接，可重复调用
	Close() error

	// HealthCheck 主动探测并刷新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error

	IsHealthy() bool

	// Name 连接实例名，用于日志和指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// RedisConnector Redis 连接器，秒杀计数、锁、缓存、布隆过滤器共用
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// MySQLConnector MySQL 连接器（GORM）
type MySQLConnector interface {
	TypedConnector[*gorm.DB]
}

// SQLiteConnector SQLite 连接器（GORM），用于测试和单机运行
type SQLiteConnector interface {
	TypedConnector[*gorm.DB]
}

// EtcdConnector Etcd 连接器，供带续约的分布式锁使用
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// NATSConnector NATS 连接器，JetStream 订单队列的底层连接
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}

// KafkaConnector Kafka 连接器（franz-go）
type KafkaConnector interface {
	TypedConnector[*kgo.Client]
}
