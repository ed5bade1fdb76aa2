// Package auth 提供基于 JWT 的身份认证。
//
// Token 的 Subject 为用户 ID。Gin 中间件校验 Token 后把 Claims 放入 gin.Context，
// 并通过 WithContextFunc 注入的函数把身份显式写入请求的 context.Context，
// 下游业务只从 context 读取用户 ID，不依赖任何线程或请求级全局状态。
//
//	authenticator, _ := auth.New(&auth.Config{SecretKey: secret},
//		auth.WithLogger(logger),
//		auth.WithContextFunc(func(ctx context.Context, c *auth.Claims) (context.Context, error) {
//			uid, err := c.UserID()
//			if err != nil {
//				return ctx, err
//			}
//			return seckill.WithUserID(ctx, uid), nil
//		}),
//	)
//	r.Use(authenticator.GinMiddleware())
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// Authenticator 认证器
type Authenticator interface {
	// GenerateToken 签发 Token，未设置的 exp/iat/iss 使用配置补齐
	GenerateToken(ctx context.Context, claims *Claims) (string, error)

	// ValidateToken 校验签名与有效期，返回 Claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)

	// RefreshToken 用仍然有效的 Token 换取新 Token
	RefreshToken(ctx context.Context, token string) (string, error)

	// GinMiddleware 认证失败返回 401
	GinMiddleware() gin.HandlerFunc
}

type jwtAuth struct {
	cfg    *Config
	logger clog.Logger
	inject ContextFunc
	now    func() time.Time

	validated metrics.Counter
	generated metrics.Counter
}

// New 创建 Authenticator
func New(cfg *Config, opts ...Option) (Authenticator, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	validated, err := o.meter.Counter(MetricTokensValidated, "Number of tokens validated")
	if err != nil {
		return nil, err
	}
	generated, err := o.meter.Counter(MetricTokensGenerated, "Number of tokens generated")
	if err != nil {
		return nil, err
	}
	return &jwtAuth{
		cfg:       cfg,
		logger:    o.logger,
		inject:    o.inject,
		now:       time.Now,
		validated: validated,
		generated: generated,
	}, nil
}

func (a *jwtAuth) GenerateToken(ctx context.Context, claims *Claims) (string, error) {
	if claims == nil || claims.Subject == "" {
		return "", ErrInvalidClaims
	}

	now := a.now()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.cfg.AccessTokenTTL))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.Issuer == "" {
		claims.Issuer = a.cfg.Issuer
	}
	if len(claims.Audience) == 0 && len(a.cfg.Audience) > 0 {
		claims.Audience = a.cfg.Audience
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.SecretKey))
	if err != nil {
		return "", xerrors.Wrap(err, "auth: sign token")
	}
	a.generated.Inc(ctx)
	a.logger.DebugContext(ctx, "token generated", clog.String("subject", claims.Subject))
	return token, nil
}

func (a *jwtAuth) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{a.cfg.SigningMethod}),
		jwt.WithTimeFunc(a.now),
	}
	if a.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.SecretKey), nil
	}, parserOpts...)
	if err != nil {
		var reason string
		switch {
		case xerrors.Is(err, jwt.ErrTokenExpired):
			reason, err = "expired", ErrExpiredToken
		case xerrors.Is(err, jwt.ErrTokenSignatureInvalid), xerrors.Is(err, jwt.ErrTokenUnverifiable):
			reason, err = "invalid_signature", ErrInvalidSignature
		default:
			reason, err = "invalid_token", xerrors.Wrap(ErrInvalidToken, err.Error())
		}
		a.validated.Inc(ctx, metrics.L(metrics.LabelResult, reason))
		return nil, err
	}
	if claims.Subject == "" {
		a.validated.Inc(ctx, metrics.L(metrics.LabelResult, "invalid_claims"))
		return nil, ErrInvalidClaims
	}

	a.validated.Inc(ctx, metrics.L(metrics.LabelResult, "success"))
	return claims, nil
}

func (a *jwtAuth) RefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := a.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	claims.ExpiresAt = nil
	claims.IssuedAt = nil
	return a.GenerateToken(ctx, claims)
}

// extractToken 按 TokenLookup 从请求中取出 Token
// header 来源同时接受 "Bearer <token>" 与裸 Token
func (a *jwtAuth) extractToken(r *http.Request) (string, error) {
	source, key, ok := strings.Cut(a.cfg.TokenLookup, ":")
	if !ok {
		return "", ErrMissingToken
	}

	var token string
	switch source {
	case "header":
		token = strings.TrimSpace(r.Header.Get(key))
		if head, rest, found := strings.Cut(token, " "); found && strings.EqualFold(head, a.cfg.TokenHeadName) {
			token = strings.TrimSpace(rest)
		}
	case "query":
		token = r.URL.Query().Get(key)
	case "cookie":
		if c, err := r.Cookie(key); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
