package db

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// 支持的驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config DB 组件配置
type Config struct {
	// Driver 数据库驱动: "mysql" 或 "sqlite"，默认 "mysql"
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// SlowThreshold 慢查询阈值，默认 200ms
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold" mapstructure:"slow_threshold"`

	EnableSharding bool           `json:"enable_sharding" yaml:"enable_sharding" mapstructure:"enable_sharding"`
	ShardingRules  []ShardingRule `json:"sharding_rules" yaml:"sharding_rules" mapstructure:"sharding_rules"`
}

// ShardingRule 分片规则
type ShardingRule struct {
	// ShardingKey 分片键，如 "user_id"
	ShardingKey string `json:"sharding_key" yaml:"sharding_key" mapstructure:"sharding_key"`

	NumberOfShards uint `json:"number_of_shards" yaml:"number_of_shards" mapstructure:"number_of_shards"`

	// Tables 应用此规则的逻辑表名，如 ["tb_voucher_order"]
	Tables []string `json:"tables" yaml:"tables" mapstructure:"tables"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMySQL
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c.Driver != DriverMySQL && c.Driver != DriverSQLite {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported driver: %s", c.Driver)
	}
	if c.EnableSharding && len(c.ShardingRules) == 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "sharding enabled but no rules provided")
	}
	for _, rule := range c.ShardingRules {
		if rule.ShardingKey == "" {
			return xerrors.Wrap(xerrors.ErrInvalidInput, "sharding key cannot be empty")
		}
		if rule.NumberOfShards == 0 {
			return xerrors.Wrap(xerrors.ErrInvalidInput, "number of shards must be greater than 0")
		}
		if len(rule.Tables) == 0 {
			return xerrors.Wrap(xerrors.ErrInvalidInput, "sharding tables cannot be empty")
		}
	}
	return nil
}
