package connector

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"` // 默认 "default"
	Addr     string `json:"addr" yaml:"addr" mapstructure:"addr"` // [必填] 如 "127.0.0.1:6379"
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`

	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`                // 默认 10
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"` // 默认 0
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`       // 默认 5s
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`       // 默认 3s
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`    // 默认 3s
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is empty")
	}
	if c.DB < 0 {
		return xerrors.Wrap(ErrConfig, "redis db must be >= 0")
	}
	return nil
}

// MySQLConfig MySQL 连接配置
type MySQLConfig struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// DSN 非空时忽略 Host/Port 等字段
	DSN      string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"` // 默认 3306
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Database string `json:"database" yaml:"database" mapstructure:"database"`
	Charset  string `json:"charset" yaml:"charset" mapstructure:"charset"` // 默认 utf8mb4

	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`          // 默认 10
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`          // 默认 100
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"` // 默认 1h
}

func (c *MySQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

func (c *MySQLConfig) validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return xerrors.Wrap(ErrConfig, "mysql host is empty")
	}
	if c.Username == "" {
		return xerrors.Wrap(ErrConfig, "mysql username is empty")
	}
	if c.Database == "" {
		return xerrors.Wrap(ErrConfig, "mysql database is empty")
	}
	return nil
}

// SQLiteConfig SQLite 连接配置
type SQLiteConfig struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	// Path 文件路径，"file::memory:?cache=shared" 为共享内存库
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

func (c *SQLiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

func (c *SQLiteConfig) validate() error {
	if c.Path == "" {
		return xerrors.Wrap(ErrConfig, "sqlite path is empty")
	}
	return nil
}

// EtcdConfig Etcd 连接配置
type EtcdConfig struct {
	Name      string   `json:"name" yaml:"name" mapstructure:"name"`
	Endpoints []string `json:"endpoints" yaml:"endpoints" mapstructure:"endpoints"` // [必填]
	Username  string   `json:"username" yaml:"username" mapstructure:"username"`
	Password  string   `json:"password" yaml:"password" mapstructure:"password"`

	DialTimeout      time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`                   // 默认 5s
	KeepAliveTime    time.Duration `json:"keep_alive_time" yaml:"keep_alive_time" mapstructure:"keep_alive_time"`          // 默认 10s
	KeepAliveTimeout time.Duration `json:"keep_alive_timeout" yaml:"keep_alive_timeout" mapstructure:"keep_alive_timeout"` // 默认 3s
}

func (c *EtcdConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeepAliveTime == 0 {
		c.KeepAliveTime = 10 * time.Second
	}
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = 3 * time.Second
	}
}

func (c *EtcdConfig) validate() error {
	if len(c.Endpoints) == 0 {
		return xerrors.Wrap(ErrConfig, "etcd endpoints are empty")
	}
	return nil
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	URL      string `json:"url" yaml:"url" mapstructure:"url"` // [必填] 如 "nats://127.0.0.1:4222"
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Token    string `json:"token" yaml:"token" mapstructure:"token"`

	Timeout       time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`                      // 默认 5s
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects" mapstructure:"max_reconnects"` // 默认 60
	ReconnectWait time.Duration `json:"reconnect_wait" yaml:"reconnect_wait" mapstructure:"reconnect_wait"` // 默认 2s
}

func (c *NATSConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
}

func (c *NATSConfig) validate() error {
	if c.URL == "" {
		return xerrors.Wrap(ErrConfig, "nats url is empty")
	}
	return nil
}

// KafkaConfig Kafka 连接配置
type KafkaConfig struct {
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	Seed     []string `json:"seed" yaml:"seed" mapstructure:"seed"` // [必填] broker 列表
	ClientID string   `json:"client_id" yaml:"client_id" mapstructure:"client_id"`

	// ConsumerGroup 非空时客户端以消费者组身份运行
	ConsumerGroup string   `json:"consumer_group" yaml:"consumer_group" mapstructure:"consumer_group"`
	Topics        []string `json:"topics" yaml:"topics" mapstructure:"topics"`

	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"` // 默认 10s
}

func (c *KafkaConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.ClientID == "" {
		c.ClientID = "seckill"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

func (c *KafkaConfig) validate() error {
	if len(c.Seed) == 0 {
		return xerrors.Wrap(ErrConfig, "kafka seed brokers are empty")
	}
	if c.ConsumerGroup != "" && len(c.Topics) == 0 {
		return xerrors.Wrap(ErrConfig, "kafka consumer group requires topics")
	}
	return nil
}
