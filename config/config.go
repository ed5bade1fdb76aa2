// Package config 提供基于 Viper 的分层配置加载。
//
// 加载优先级（高到低）：
//  1. 环境变量（<PREFIX>_A_B 对应 key a.b）
//  2. .env 文件
//  3. 环境特定文件 <name>.<env>.yaml，env 取自 <PREFIX>_ENV
//  4. 基础文件 <name>.yaml
//
// 基本使用：
//
//	loader, _ := config.New(
//	    config.WithConfigName("seckill"),
//	    config.WithConfigPaths("./configs"),
//	    config.WithEnvPrefix("SECKILL"),
//	)
//	if err := loader.Load(ctx); err != nil {
//	    return err
//	}
//	var redisCfg connector.RedisConfig
//	_ = loader.UnmarshalKey("redis", &redisCfg)
package config

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/seckill/clog"
)

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置并开始监听文件变更
	Load(ctx context.Context) error

	Get(key string) any

	// Unmarshal 将全部配置解码到 v（按 mapstructure 标签）
	Unmarshal(v any) error

	UnmarshalKey(key string, v any) error

	// Watch 订阅某个 key 的变更，ctx 结束后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file" | "env"
	Timestamp time.Time
}

// Option 加载器选项
type Option func(*options)

type options struct {
	name      string
	paths     []string
	fileType  string
	envPrefix string
	logger    clog.Logger
}

func defaultOptions() *options {
	return &options{
		name:      "config",
		paths:     []string{".", "./config"},
		fileType:  "yaml",
		envPrefix: "SECKILL",
		logger:    clog.Discard(),
	}
}

// WithConfigName 配置文件名（不含扩展名），默认 "config"
func WithConfigName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithConfigPaths 替换搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(o *options) { o.paths = paths }
}

// WithConfigType 配置文件类型，默认 yaml
func WithConfigType(typ string) Option {
	return func(o *options) { o.fileType = typ }
}

// WithEnvPrefix 环境变量前缀，默认 SECKILL
func WithEnvPrefix(prefix string) Option {
	return func(o *options) { o.envPrefix = strings.ToUpper(prefix) }
}

// WithLogger 设置日志
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建加载器，此时尚未读取任何来源
func New(opts ...Option) (Loader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.name == "" {
		return nil, ErrNameEmpty
	}
	return newLoader(o), nil
}
