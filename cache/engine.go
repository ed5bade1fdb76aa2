// Package cache 提供带防护策略的读穿缓存引擎。
//
// 三种读策略：
//   - PassThrough: 未命中回源，不存在的 ID 写入空值标记，TTL 加随机抖动
//   - Mutex: 未命中时只有重建锁的持有者回源，其余调用方间隔重读
//   - LogicalExpire: 条目不设物理 TTL，过期后先返回旧值，由后台单一执行者重建
//
// 两种编码：String 保存序列化后的值或 JSON envelope；Hash 保存展开的字段
// 或 data/expireTime 两个字段的 envelope。无法解码的条目会被删除并回源，
// 不会把错误暴露给调用方。
//
//	eng, _ := cache.New(&cache.Config{}, cache.WithRedisConnector(redisConn))
//	defer eng.Close()
//
//	var s Shop
//	found, err := eng.Get(ctx, cache.Request{
//		Prefix:   "cache:shop:",
//		ID:       "1",
//		Strategy: cache.Mutex,
//		TTL:      30 * time.Minute,
//		Loader: func(ctx context.Context) (any, bool, error) {
//			return repo.FindShop(ctx, 1)
//		},
//	}, &s)
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ceyewan/seckill/cache/serializer"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/dlock"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// Strategy 读策略
type Strategy int

const (
	PassThrough Strategy = iota
	Mutex
	LogicalExpire
)

func (s Strategy) String() string {
	switch s {
	case Mutex:
		return "mutex"
	case LogicalExpire:
		return "logical_expire"
	default:
		return "pass_through"
	}
}

// Encoding 存储编码
type Encoding int

const (
	EncodingString Encoding = iota
	EncodingHash
	// EncodingAuto 读取时按 key 的实际类型解析，写入时等同 EncodingString
	EncodingAuto
)

// Loader 回源函数，found 为 false 表示数据不存在
type Loader func(ctx context.Context) (value any, found bool, err error)

// Request 一次读请求
type Request struct {
	Prefix string
	ID     string
	Loader Loader

	// TTL PassThrough/Mutex 为物理 TTL 的基准值；LogicalExpire 为逻辑有效期
	TTL      time.Duration
	Strategy Strategy
	Encoding Encoding
}

func (r Request) validate() error {
	if r.ID == "" {
		return xerrors.Wrap(ErrInvalidRequest, "empty id")
	}
	if r.Loader == nil {
		return xerrors.Wrap(ErrInvalidRequest, "nil loader")
	}
	if r.TTL <= 0 {
		return xerrors.Wrap(ErrInvalidRequest, "ttl must be positive")
	}
	return nil
}

// Engine 缓存引擎
type Engine struct {
	cfg     *Config
	store   Store
	locker  dlock.Locker
	codec   codec
	local   *local
	flight  singleflight.Group
	rebuild *rebuilder
	now     func() time.Time
	logger  clog.Logger

	requests metrics.Counter
	loads    metrics.Counter
	corrupt  metrics.Counter
	rebuilds metrics.Counter
}

// New 创建缓存引擎
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opt := applyOptions(opts)

	values, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, err.Error())
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "location %q", cfg.Location)
	}

	store := opt.store
	if store == nil && opt.redisConnector != nil {
		store = NewRedisStore(opt.redisConnector)
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	locker := opt.locker
	if locker == nil {
		if opt.redisConnector == nil {
			return nil, ErrLockerRequired
		}
		locker, err = dlock.New(&dlock.Config{Driver: dlock.DriverRedis, DefaultTTL: cfg.LockTTL},
			dlock.WithRedisConnector(opt.redisConnector),
			dlock.WithLogger(opt.logger),
			dlock.WithMeter(opt.meter),
		)
		if err != nil {
			return nil, err
		}
	}

	lc, err := newLocal(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		store:  store,
		locker: locker,
		codec:  codec{values: values, loc: loc},
		local:  lc,
		now:    opt.clock,
		logger: opt.logger,
	}
	if e.requests, err = opt.meter.Counter(MetricRequests, "cache read requests"); err != nil {
		return nil, err
	}
	if e.loads, err = opt.meter.Counter(MetricLoads, "cache fallback loads"); err != nil {
		return nil, err
	}
	if e.corrupt, err = opt.meter.Counter(MetricCorrupt, "undecodable cache entries removed"); err != nil {
		return nil, err
	}
	if e.rebuilds, err = opt.meter.Counter(MetricRebuilds, "logical expiration rebuilds"); err != nil {
		return nil, err
	}
	e.rebuild = newRebuilder(cfg.RebuildWorkers, cfg.RebuildQueue, opt.logger, e.rebuilds, e.runRebuild)
	return e, nil
}

// Get 按策略读取，found 为 false 表示数据不存在（含空值标记命中）
func (e *Engine) Get(ctx context.Context, req Request, dst any) (bool, error) {
	if err := req.validate(); err != nil {
		return false, err
	}
	key := req.Prefix + req.ID

	switch req.Strategy {
	case Mutex:
		return e.getMutex(ctx, key, req, dst)
	case LogicalExpire:
		return e.getLogical(ctx, key, req, dst)
	default:
		return e.getPassThrough(ctx, key, req, dst)
	}
}

func (e *Engine) getPassThrough(ctx context.Context, key string, req Request, dst any) (bool, error) {
	ent, err := e.lookup(ctx, key, req, dst)
	if err != nil {
		return false, err
	}
	if ent.state != entryMiss {
		return ent.state == entryValue, nil
	}
	e.count(ctx, req, "miss")

	loaded, err := e.load(ctx, key, req)
	if err != nil {
		return false, err
	}
	return e.finish(loaded, dst)
}

func (e *Engine) getMutex(ctx context.Context, key string, req Request, dst any) (bool, error) {
	for attempt := 0; ; attempt++ {
		ent, err := e.lookup(ctx, key, req, dst)
		if err != nil {
			return false, err
		}
		if ent.state != entryMiss {
			return ent.state == entryValue, nil
		}
		if attempt == 0 {
			e.count(ctx, req, "miss")
		}

		// 同一 key 的等待者共享这次加载，不能随首个调用方取消
		v, err, _ := e.flight.Do(key, func() (any, error) {
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.LockTTL)
			defer cancel()
			return e.loadLocked(lctx, key, req)
		})
		if err != nil {
			return false, err
		}
		if res := v.(lockedLoad); res.acquired {
			return e.finish(res.ent, dst)
		}

		if attempt >= e.cfg.MaxRetries {
			e.logger.WarnContext(ctx, "cache lock wait exhausted", clog.String("key", key), clog.Int("retries", attempt))
			return false, ErrLockTimeout
		}
		if err := sleep(ctx, e.cfg.RetryInterval); err != nil {
			return false, err
		}
	}
}

func (e *Engine) getLogical(ctx context.Context, key string, req Request, dst any) (bool, error) {
	ent, err := e.lookup(ctx, key, req, dst)
	if err != nil {
		return false, err
	}
	switch ent.state {
	case entryNull:
		return false, nil
	case entryValue:
		if ent.legacy || ent.expired(e.now()) {
			e.count(ctx, req, "stale")
			e.rebuild.submit(rebuildTask{ctx: context.WithoutCancel(ctx), key: key, req: req})
		}
		return true, nil
	}
	// 完全未命中时没有旧值可返回，在锁内同步加载
	return e.getMutex(ctx, key, req, dst)
}

type lockedLoad struct {
	acquired bool
	ent      entry
}

// loadLocked 抢重建锁，抢到后复查缓存再回源
func (e *Engine) loadLocked(ctx context.Context, key string, req Request) (lockedLoad, error) {
	ok, err := e.locker.TryLock(ctx, key, dlock.WithTTL(e.cfg.LockTTL))
	if err != nil {
		return lockedLoad{}, xerrors.Wrapf(err, "cache: lock %s", key)
	}
	if !ok {
		return lockedLoad{}, nil
	}
	defer e.unlock(ctx, key)

	ent, err := e.read(ctx, key, req)
	if err != nil {
		return lockedLoad{}, err
	}
	if ent.state != entryMiss {
		return lockedLoad{acquired: true, ent: ent}, nil
	}
	ent, err = e.load(ctx, key, req)
	if err != nil {
		return lockedLoad{}, err
	}
	return lockedLoad{acquired: true, ent: ent}, nil
}

func (e *Engine) unlock(ctx context.Context, key string) {
	if err := e.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
		e.logger.WarnContext(ctx, "cache unlock failed", clog.String("key", key), clog.Error(err))
	}
}

// lookup 读取并解码到 dst；损坏的条目被删除并视为未命中
func (e *Engine) lookup(ctx context.Context, key string, req Request, dst any) (entry, error) {
	ent, err := e.read(ctx, key, req)
	if err != nil {
		return entry{}, err
	}
	switch ent.state {
	case entryNull:
		e.count(ctx, req, "null")
	case entryValue:
		if err := decodeInto(ent, dst); err != nil {
			e.dropCorrupt(ctx, key, err)
			return entry{state: entryMiss}, nil
		}
		e.count(ctx, req, "hit")
	}
	return ent, nil
}

// read 依次查 L1 和远端存储
func (e *Engine) read(ctx context.Context, key string, req Request) (entry, error) {
	if ent, ok := e.local.get(key); ok {
		return ent, nil
	}

	raw, err := e.store.Load(ctx, key, req.Encoding)
	if xerrors.Is(err, ErrWrongType) {
		e.dropCorrupt(ctx, key, err)
		return entry{state: entryMiss}, nil
	}
	if err != nil {
		return entry{}, xerrors.Wrap(err, "cache: read")
	}

	ent, err := e.codec.parse(raw, req.Strategy == LogicalExpire)
	if err != nil {
		e.dropCorrupt(ctx, key, err)
		return entry{state: entryMiss}, nil
	}
	e.local.set(key, ent)
	return ent, nil
}

// load 回源并写回缓存；写回失败只记录日志
func (e *Engine) load(ctx context.Context, key string, req Request) (entry, error) {
	value, found, err := req.Loader(ctx)
	if err != nil {
		e.loads.Inc(ctx, metrics.L("strategy", req.Strategy.String()), metrics.L(metrics.LabelResult, "error"))
		return entry{}, xerrors.Wrapf(err, "cache: load %s", key)
	}
	if !found {
		e.loads.Inc(ctx, metrics.L("strategy", req.Strategy.String()), metrics.L(metrics.LabelResult, "absent"))
		out := encodeNull(req.Encoding)
		e.save(ctx, key, out, jitter(e.cfg.NullTTL))
		return out.ent, nil
	}
	e.loads.Inc(ctx, metrics.L("strategy", req.Strategy.String()), metrics.L(metrics.LabelResult, "found"))

	var out encoded
	ttl := time.Duration(0)
	if req.Strategy == LogicalExpire {
		out, err = e.codec.encodeLogical(value, e.now().Add(req.TTL), req.Encoding)
	} else {
		out, err = e.codec.encodePlain(value, req.Encoding)
		ttl = jitter(req.TTL)
	}
	if err != nil {
		return entry{}, err
	}
	e.save(ctx, key, out, ttl)
	return out.ent, nil
}

func (e *Engine) save(ctx context.Context, key string, out encoded, ttl time.Duration) {
	if err := e.writeThrough(ctx, key, out, ttl); err != nil {
		e.logger.WarnContext(ctx, "cache write back failed", clog.String("key", key), clog.Error(err))
	}
}

func (e *Engine) finish(ent entry, dst any) (bool, error) {
	if ent.state != entryValue {
		return false, nil
	}
	if err := decodeInto(ent, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) dropCorrupt(ctx context.Context, key string, cause error) {
	e.corrupt.Inc(ctx)
	e.logger.WarnContext(ctx, "corrupt cache entry removed", clog.String("key", key), clog.Error(cause))
	e.local.invalidate(key)
	if err := e.store.Delete(ctx, key); err != nil {
		e.logger.WarnContext(ctx, "delete corrupt entry failed", clog.String("key", key), clog.Error(err))
	}
}

// runRebuild 逻辑过期重建，抢不到锁直接放弃
func (e *Engine) runRebuild(t rebuildTask) {
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.LockTTL)
	defer cancel()

	ok, err := e.locker.TryLock(ctx, t.key, dlock.WithTTL(e.cfg.LockTTL))
	if err != nil {
		e.rebuilds.Inc(ctx, metrics.L(metrics.LabelResult, "error"))
		e.logger.WarnContext(ctx, "rebuild lock failed", clog.String("key", t.key), clog.Error(err))
		return
	}
	if !ok {
		e.rebuilds.Inc(ctx, metrics.L(metrics.LabelResult, "skipped"))
		return
	}
	defer e.unlock(ctx, t.key)

	e.local.invalidate(t.key)
	ent, err := e.read(ctx, t.key, t.req)
	if err == nil && ent.state == entryValue && !ent.legacy && !ent.expired(e.now()) {
		e.rebuilds.Inc(ctx, metrics.L(metrics.LabelResult, "skipped"))
		return
	}

	if _, err := e.load(ctx, t.key, t.req); err != nil {
		e.rebuilds.Inc(ctx, metrics.L(metrics.LabelResult, "error"))
		e.logger.ErrorContext(ctx, "rebuild failed, stale value kept", clog.String("key", t.key), clog.Error(err))
		return
	}
	e.rebuilds.Inc(ctx, metrics.L(metrics.LabelResult, "done"))
	e.logger.DebugContext(ctx, "cache entry rebuilt", clog.String("key", t.key))
}

// Set 写入普通条目，TTL 加随机抖动
func (e *Engine) Set(ctx context.Context, key string, value any, ttl time.Duration, enc Encoding) error {
	out, err := e.codec.encodePlain(value, enc)
	if err != nil {
		return err
	}
	return e.writeThrough(ctx, key, out, jitter(ttl))
}

// SetLogical 写入逻辑过期 envelope，不设物理 TTL，用于预热
func (e *Engine) SetLogical(ctx context.Context, key string, value any, expireIn time.Duration, enc Encoding) error {
	out, err := e.codec.encodeLogical(value, e.now().Add(expireIn), enc)
	if err != nil {
		return err
	}
	return e.writeThrough(ctx, key, out, 0)
}

func (e *Engine) writeThrough(ctx context.Context, key string, out encoded, ttl time.Duration) error {
	var err error
	if out.fields != nil {
		err = e.store.SaveHash(ctx, key, out.fields, ttl)
	} else {
		err = e.store.SaveString(ctx, key, out.str, ttl)
	}
	e.local.invalidate(key)
	return xerrors.Wrapf(err, "cache: write %s", key)
}

// Delete 删除条目，同时清理 L1
func (e *Engine) Delete(ctx context.Context, keys ...string) error {
	e.local.invalidate(keys...)
	return xerrors.Wrap(e.store.Delete(ctx, keys...), "cache: delete")
}

// Close 停止重建池并等待进行中的重建完成，不关闭连接器
func (e *Engine) Close() error {
	e.rebuild.close()
	return nil
}

func (e *Engine) count(ctx context.Context, req Request, result string) {
	e.requests.Inc(ctx, metrics.L("strategy", req.Strategy.String()), metrics.L(metrics.LabelResult, result))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
