package app

import (
	"context"

	"github.com/ceyewan/seckill/auth"
	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/cache"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/config"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/dlock"
	"github.com/ceyewan/seckill/fulfillment"
	"github.com/ceyewan/seckill/idem"
	"github.com/ceyewan/seckill/idgen"
	"github.com/ceyewan/seckill/internal/server"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/shop"
	"github.com/ceyewan/seckill/trace"
	"github.com/ceyewan/seckill/xerrors"
)

// Config 服务的完整配置，对应 configs/seckill.yaml
//
// 连接器按需启用：db.driver 决定使用 mysql 还是 sqlite，
// mq.driver 决定是否需要 nats 或 kafka，lock.driver=etcd 时需要 etcd。
type Config struct {
	Log     clog.Config    `json:"log" yaml:"log" mapstructure:"log"`
	Metrics metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Trace   trace.Config   `json:"trace" yaml:"trace" mapstructure:"trace"`
	HTTP    server.Config  `json:"http" yaml:"http" mapstructure:"http"`

	Redis  connector.RedisConfig   `json:"redis" yaml:"redis" mapstructure:"redis"`
	MySQL  *connector.MySQLConfig  `json:"mysql,omitempty" yaml:"mysql,omitempty" mapstructure:"mysql"`
	SQLite *connector.SQLiteConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	NATS   *connector.NATSConfig   `json:"nats,omitempty" yaml:"nats,omitempty" mapstructure:"nats"`
	Kafka  *connector.KafkaConfig  `json:"kafka,omitempty" yaml:"kafka,omitempty" mapstructure:"kafka"`
	Etcd   *connector.EtcdConfig   `json:"etcd,omitempty" yaml:"etcd,omitempty" mapstructure:"etcd"`

	DB        db.Config        `json:"db" yaml:"db" mapstructure:"db"`
	Cache     cache.Config     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Lock      dlock.Config     `json:"lock" yaml:"lock" mapstructure:"lock"`
	Bloom     bloom.Config     `json:"bloom" yaml:"bloom" mapstructure:"bloom"`
	IDGen     idgen.Config     `json:"idgen" yaml:"idgen" mapstructure:"idgen"`
	MQ        mq.Config        `json:"mq" yaml:"mq" mapstructure:"mq"`
	RateLimit ratelimit.Config `json:"ratelimit" yaml:"ratelimit" mapstructure:"ratelimit"`
	Breaker   breaker.Config   `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
	Auth      auth.Config      `json:"auth" yaml:"auth" mapstructure:"auth"`
	Idem      idem.Config      `json:"idem" yaml:"idem" mapstructure:"idem"`

	Shop        shop.Config        `json:"shop" yaml:"shop" mapstructure:"shop"`
	Seckill     seckill.Config     `json:"seckill" yaml:"seckill" mapstructure:"seckill"`
	Fulfillment fulfillment.Config `json:"fulfillment" yaml:"fulfillment" mapstructure:"fulfillment"`

	Startup StartupConfig `json:"startup" yaml:"startup" mapstructure:"startup"`
}

// StartupConfig 启动阶段的数据准备
type StartupConfig struct {
	// Migrate 启动时建表，默认关闭
	Migrate bool `json:"migrate" yaml:"migrate" mapstructure:"migrate"`

	// BloomBootstrap 用目录中已有的店铺、券、用户 ID 填充过滤器
	BloomBootstrap bool `json:"bloom_bootstrap" yaml:"bloom_bootstrap" mapstructure:"bloom_bootstrap"`

	// PreloadStock 用持久化库存覆盖快路径库存。
	// 队列中仍有未落库的意图时开启会多放行，最终由条件扣减兜底。
	PreloadStock bool `json:"preload_stock" yaml:"preload_stock" mapstructure:"preload_stock"`

	// WarmupShops 以逻辑过期 envelope 预热全部店铺
	WarmupShops bool `json:"warmup_shops" yaml:"warmup_shops" mapstructure:"warmup_shops"`
}

// Load 从 paths 中查找 name.yaml，并用 prefix 开头的环境变量覆盖
//
//	SECKILL_REDIS_ADDR=redis:6379 覆盖 redis.addr
func Load(ctx context.Context, name, prefix string, paths ...string) (*Config, error) {
	loader, err := config.New(
		config.WithConfigName(name),
		config.WithConfigPaths(paths...),
		config.WithEnvPrefix(prefix),
	)
	if err != nil {
		return nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}
	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(err, "app: unmarshal config")
	}
	return &cfg, nil
}
