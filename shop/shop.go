// Package shop 是店铺的读写路径：布隆过滤器拦截不存在的 ID，
// 缓存引擎按配置的策略读取，回源查询持久化目录。
// 写入先更新目录再删除缓存。
package shop

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/cache"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

// CacheKeyPrefix 店铺缓存键前缀
const CacheKeyPrefix = "cache:shop:"

// Store 店铺持久化，通常是 *catalog.Catalog
type Store interface {
	GetShop(ctx context.Context, id int64) (*catalog.Shop, error)
	CreateShop(ctx context.Context, shop *catalog.Shop) error
	UpdateShop(ctx context.Context, shop *catalog.Shop) error
}

// Service 店铺服务
type Service struct {
	cfg      *Config
	strategy cache.Strategy
	encoding cache.Encoding

	store  Store
	cache  *cache.Engine
	bloom  bloom.Filter
	logger clog.Logger
}

// Option 初始化选项
type Option func(*Service)

// WithLogger 注入日志记录器，命名空间 "shop"
func WithLogger(l clog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithNamespace("shop")
		}
	}
}

// WithBloom 店铺 ID 过滤器，未设置时不拦截
func WithBloom(f bloom.Filter) Option {
	return func(s *Service) {
		s.bloom = f
	}
}

// New 创建店铺服务
func New(cfg *Config, store Store, engine *cache.Engine, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if store == nil || engine == nil {
		return nil, ErrDependencyNil
	}
	strategy, err := cfg.strategy()
	if err != nil {
		return nil, err
	}
	encoding, err := cfg.encoding()
	if err != nil {
		return nil, err
	}
	if cfg.TTL < 0 || cfg.WarmupConcurrency < 1 {
		return nil, xerrors.Wrap(ErrInvalidConfig, "ttl must not be negative and warmup_concurrency must be positive")
	}

	s := &Service{
		cfg:      cfg,
		strategy: strategy,
		encoding: encoding,
		store:    store,
		cache:    engine,
		logger:   clog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key 店铺缓存键
func Key(id int64) string {
	return CacheKeyPrefix + strconv.FormatInt(id, 10)
}

// Get 读取店铺，不存在返回 ErrNotFound
func (s *Service) Get(ctx context.Context, id int64) (*catalog.Shop, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	if s.bloom != nil {
		ok, err := s.bloom.MightContain(ctx, bloom.ID(id))
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "bloom check failed, falling through", clog.Int64("shop_id", id), clog.Error(err))
		case !ok:
			return nil, ErrNotFound
		}
	}

	var shop catalog.Shop
	found, err := s.cache.Get(ctx, cache.Request{
		Prefix:   CacheKeyPrefix,
		ID:       strconv.FormatInt(id, 10),
		TTL:      s.cfg.TTL,
		Strategy: s.strategy,
		Encoding: s.encoding,
		Loader:   s.loader(id),
	}, &shop)
	if err != nil {
		return nil, xerrors.Wrapf(err, "shop: get %d", id)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &shop, nil
}

func (s *Service) loader(id int64) cache.Loader {
	return func(ctx context.Context) (any, bool, error) {
		shop, err := s.store.GetShop(ctx, id)
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return shop, true, nil
	}
}

// Create 新增店铺并登记到过滤器
func (s *Service) Create(ctx context.Context, shop *catalog.Shop) error {
	if err := s.store.CreateShop(ctx, shop); err != nil {
		return err
	}
	if s.bloom != nil {
		if err := s.bloom.Add(ctx, bloom.ID(shop.ID)); err != nil {
			return xerrors.Wrap(err, "shop: add to bloom")
		}
	}
	s.logger.InfoContext(ctx, "shop created", clog.Int64("shop_id", shop.ID))
	return nil
}

// Update 更新目录后删除缓存
func (s *Service) Update(ctx context.Context, shop *catalog.Shop) error {
	if shop == nil || shop.ID <= 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "shop: id is required")
	}
	if err := s.store.UpdateShop(ctx, shop); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, Key(shop.ID)); err != nil {
		return xerrors.Wrapf(err, "shop: invalidate %d", shop.ID)
	}
	return nil
}

// Warmup 把店铺以逻辑过期 envelope 写入缓存，不存在的 ID 跳过
func (s *Service) Warmup(ctx context.Context, ids []int64, expireIn time.Duration) error {
	if expireIn <= 0 {
		expireIn = s.cfg.TTL
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WarmupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			shop, err := s.store.GetShop(gctx, id)
			if xerrors.Is(err, xerrors.ErrNotFound) {
				s.logger.WarnContext(gctx, "skip warmup of missing shop", clog.Int64("shop_id", id))
				return nil
			}
			if err != nil {
				return err
			}
			return s.cache.SetLogical(gctx, Key(id), shop, expireIn, s.encoding)
		})
	}
	if err := g.Wait(); err != nil {
		return xerrors.Wrap(err, "shop: warmup")
	}
	s.logger.InfoContext(ctx, "shops warmed up", clog.Int("count", len(ids)), clog.Duration("expire_in", expireIn))
	return nil
}
