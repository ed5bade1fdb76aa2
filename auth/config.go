package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/seckill/xerrors"
)

// Config 认证配置
//
//	auth:
//	  secret_key: "at-least-32-characters-long-secret"
//	  issuer: seckill
//	  access_token_ttl: 30m
type Config struct {
	// SecretKey HMAC 密钥，至少 32 字符
	SecretKey     string   `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`
	SigningMethod string   `json:"signing_method" yaml:"signing_method" mapstructure:"signing_method"` // 目前只支持 HS256
	Issuer        string   `json:"issuer" yaml:"issuer" mapstructure:"issuer"`
	Audience      []string `json:"audience" yaml:"audience" mapstructure:"audience"`

	// AccessTokenTTL 默认 30m
	AccessTokenTTL time.Duration `json:"access_token_ttl" yaml:"access_token_ttl" mapstructure:"access_token_ttl"`

	// TokenLookup 形如 "header:Authorization"、"query:token"、"cookie:jwt"，默认 header:authorization
	TokenLookup string `json:"token_lookup" yaml:"token_lookup" mapstructure:"token_lookup"`

	// TokenHeadName Header 中 Token 的前缀，默认 Bearer
	TokenHeadName string `json:"token_head_name" yaml:"token_head_name" mapstructure:"token_head_name"`
}

func (c *Config) setDefaults() {
	if c.SigningMethod == "" {
		c.SigningMethod = jwt.SigningMethodHS256.Alg()
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 30 * time.Minute
	}
	if c.TokenLookup == "" {
		c.TokenLookup = "header:authorization"
	}
	if c.TokenHeadName == "" {
		c.TokenHeadName = "Bearer"
	}
}

func (c *Config) validate() error {
	if len(c.SecretKey) < 32 {
		return xerrors.Wrap(ErrInvalidConfig, "secret_key must be at least 32 characters")
	}
	if c.SigningMethod != jwt.SigningMethodHS256.Alg() {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported signing_method: %s", c.SigningMethod)
	}
	if c.AccessTokenTTL < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "access_token_ttl must be positive")
	}
	return nil
}
