package seckill

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// Result 准入脚本的返回码
type Result int

const (
	ResultOK             Result = 0
	ResultStockExhausted Result = 1
	ResultDuplicate      Result = 2
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultStockExhausted:
		return "stock_exhausted"
	case ResultDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// 计数存储中的键
const (
	KeyStockPrefix       = "seckill:stock:"
	KeyOrderPrefix       = "seckill:order:"
	KeyCompensatedPrefix = "seckill:compensated:"
)

// StockKey 库存计数键
func StockKey(voucherID int64) string {
	return KeyStockPrefix + strconv.FormatInt(voucherID, 10)
}

// OrderKey 已下单用户集合键
func OrderKey(voucherID int64) string {
	return KeyOrderPrefix + strconv.FormatInt(voucherID, 10)
}

// CompensatedKey 补偿标记键，每个下单意图（订单 ID）最多补偿一次
func CompensatedKey(orderID int64) string {
	return KeyCompensatedPrefix + strconv.FormatInt(orderID, 10)
}

// DefaultCompensationTTL 补偿标记的默认有效期
const DefaultCompensationTTL = 24 * time.Hour

// CounterStore 快路径库存与一人一单标记
type CounterStore interface {
	// Admit 原子地检查库存与重复下单，通过时扣减库存并记录用户
	Admit(ctx context.Context, voucherID, userID int64) (Result, error)

	// SetStock 写入库存计数，创建秒杀券时调用
	SetStock(ctx context.Context, voucherID int64, stock int) error

	// Stock 读取当前库存计数，键不存在返回 0
	Stock(ctx context.Context, voucherID int64) (int64, error)

	// Compensate 为订单 orderID 归还一个库存并移除用户的下单标记。
	// 同一订单在 markerTTL 内只生效一次，返回是否实际执行；markerTTL <= 0 时取默认值
	Compensate(ctx context.Context, orderID, voucherID, userID int64, markerTTL time.Duration) (bool, error)

	// Compensated 订单是否已经补偿过
	Compensated(ctx context.Context, orderID int64) (bool, error)
}

// admitScript KEYS: stock, order；ARGV: userID
var admitScript = redis.NewScript(`
local stock = tonumber(redis.call("GET", KEYS[1]))
if stock == nil or stock <= 0 then
	return 1
end
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 1 then
	return 2
end
redis.call("INCRBY", KEYS[1], -1)
redis.call("SADD", KEYS[2], ARGV[1])
return 0
`)

// compensateScript KEYS: marker, stock, order；ARGV: userID, markerTTL(ms)
var compensateScript = redis.NewScript(`
if not redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[2]) then
	return 0
end
redis.call("INCR", KEYS[2])
redis.call("SREM", KEYS[3], ARGV[1])
return 1
`)

// RedisCounter 基于 Redis Lua 脚本的 CounterStore
type RedisCounter struct {
	conn connector.RedisConnector
}

// NewRedisCounter 创建 RedisCounter
func NewRedisCounter(conn connector.RedisConnector) (*RedisCounter, error) {
	if conn == nil {
		return nil, xerrors.Wrap(ErrDependencyNil, "redis connector")
	}
	return &RedisCounter{conn: conn}, nil
}

func (c *RedisCounter) Admit(ctx context.Context, voucherID, userID int64) (Result, error) {
	keys := []string{StockKey(voucherID), OrderKey(voucherID)}
	n, err := admitScript.Run(ctx, c.conn.GetClient(), keys, userID).Int()
	if err != nil {
		return 0, xerrors.Wrap(err, "seckill: run admit script")
	}
	r := Result(n)
	if r.String() == "unknown" {
		return 0, xerrors.Wrapf(ErrUnknownResult, "got %d", n)
	}
	return r, nil
}

func (c *RedisCounter) SetStock(ctx context.Context, voucherID int64, stock int) error {
	return xerrors.Wrap(c.conn.GetClient().Set(ctx, StockKey(voucherID), stock, 0).Err(), "seckill: set stock")
}

func (c *RedisCounter) Stock(ctx context.Context, voucherID int64) (int64, error) {
	n, err := c.conn.GetClient().Get(ctx, StockKey(voucherID)).Int64()
	if xerrors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, xerrors.Wrap(err, "seckill: get stock")
}

func (c *RedisCounter) Compensate(ctx context.Context, orderID, voucherID, userID int64, markerTTL time.Duration) (bool, error) {
	if markerTTL <= 0 {
		markerTTL = DefaultCompensationTTL
	}
	keys := []string{CompensatedKey(orderID), StockKey(voucherID), OrderKey(voucherID)}
	n, err := compensateScript.Run(ctx, c.conn.GetClient(), keys, userID, markerTTL.Milliseconds()).Int()
	if err != nil {
		return false, xerrors.Wrap(err, "seckill: run compensate script")
	}
	return n == 1, nil
}

func (c *RedisCounter) Compensated(ctx context.Context, orderID int64) (bool, error) {
	n, err := c.conn.GetClient().Exists(ctx, CompensatedKey(orderID)).Result()
	if err != nil {
		return false, xerrors.Wrap(err, "seckill: check compensation marker")
	}
	return n == 1, nil
}

// MemoryCounter 进程内 CounterStore，单实例部署与测试使用
type MemoryCounter struct {
	mu          sync.Mutex
	stock       map[int64]int64
	orders      map[int64]map[int64]struct{}
	compensated map[int64]time.Time
	now         func() time.Time
}

// NewMemoryCounter 创建 MemoryCounter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		stock:       make(map[int64]int64),
		orders:      make(map[int64]map[int64]struct{}),
		compensated: make(map[int64]time.Time),
		now:         time.Now,
	}
}

func (c *MemoryCounter) Admit(_ context.Context, voucherID, userID int64) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stock[voucherID] <= 0 {
		return ResultStockExhausted, nil
	}
	users := c.orders[voucherID]
	if _, ok := users[userID]; ok {
		return ResultDuplicate, nil
	}
	if users == nil {
		users = make(map[int64]struct{})
		c.orders[voucherID] = users
	}
	c.stock[voucherID]--
	users[userID] = struct{}{}
	return ResultOK, nil
}

func (c *MemoryCounter) SetStock(_ context.Context, voucherID int64, stock int) error {
	c.mu.Lock()
	c.stock[voucherID] = int64(stock)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCounter) Stock(_ context.Context, voucherID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stock[voucherID], nil
}

func (c *MemoryCounter) Compensate(_ context.Context, orderID, voucherID, userID int64, markerTTL time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if markerTTL <= 0 {
		markerTTL = DefaultCompensationTTL
	}
	if c.marked(orderID) {
		return false, nil
	}
	c.compensated[orderID] = c.now().Add(markerTTL)
	c.stock[voucherID]++
	delete(c.orders[voucherID], userID)
	return true, nil
}

func (c *MemoryCounter) Compensated(_ context.Context, orderID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marked(orderID), nil
}

func (c *MemoryCounter) marked(orderID int64) bool {
	exp, ok := c.compensated[orderID]
	return ok && c.now().Before(exp)
}
