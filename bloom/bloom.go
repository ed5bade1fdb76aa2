// Package bloom 提供按业务类型划分的布隆过滤器，用于在访问缓存和数据库之前
// 拦截一定不存在的 ID。
//
// 过滤器只追加不删除：判定为不存在的 ID 一定不存在，判定为存在的 ID
// 有 FalsePositiveRate 的概率实际不存在，需要后续查询兜底。
//
//	reg, _ := bloom.NewRegistry(&bloom.Config{Driver: bloom.DriverRedis},
//		bloom.WithRedisConnector(redisConn))
//	shops := reg.Filter(bloom.KindShop)
//	_ = shops.Add(ctx, "1", "2")
//	ok, _ := shops.MightContain(ctx, "3")
package bloom

import (
	"context"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
)

// 业务类型，每种类型一个独立的过滤器
const (
	KindShop    = "shop"
	KindUser    = "user"
	KindVoucher = "voucher"
	KindStock   = "stock"
)

// Filter 布隆过滤器
type Filter interface {
	// Add 加入元素，已存在的元素重复加入无副作用
	Add(ctx context.Context, items ...string) error

	// MightContain 返回 false 表示一定不存在
	MightContain(ctx context.Context, item string) (bool, error)
}

// ID 将数字 ID 转为过滤器元素
func ID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// bitset 过滤器的位存储
type bitset interface {
	set(ctx context.Context, offsets []uint64) error
	test(ctx context.Context, offsets []uint64) (bool, error)
}

// params 由期望元素数 n 与误判率 p 推导的位数 m 和哈希次数 k
type params struct {
	m uint64
	k uint64
}

// optimalParams m = -n·ln(p)/(ln2)²，k = m/n·ln2
func optimalParams(n uint64, p float64) params {
	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	k := math.Round(m / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return params{m: uint64(m), k: uint64(k)}
}

// offsets 双重哈希：第 i 个位置为 (h1 + i·h2) mod m
func (p params) offsets(item string) []uint64 {
	h := xxhash.Sum64String(item)
	h1, h2 := h&math.MaxUint32, h>>32
	if h2 == 0 {
		h2 = 1
	}
	out := make([]uint64, p.k)
	for i := uint64(0); i < p.k; i++ {
		out[i] = (h1 + i*h2) % p.m
	}
	return out
}

type filter struct {
	kind   string
	params params
	bits   bitset
	logger clog.Logger
	checks metrics.Counter
}

func (f *filter) Add(ctx context.Context, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	offsets := make([]uint64, 0, len(items)*int(f.params.k))
	for _, item := range items {
		offsets = append(offsets, f.params.offsets(item)...)
	}
	return f.bits.set(ctx, offsets)
}

func (f *filter) MightContain(ctx context.Context, item string) (bool, error) {
	ok, err := f.bits.test(ctx, f.params.offsets(item))
	if err != nil {
		f.logger.WarnContext(ctx, "bloom check failed", clog.String("kind", f.kind), clog.Error(err))
		return false, err
	}
	result := "miss"
	if ok {
		result = "maybe"
	}
	f.checks.Inc(ctx, metrics.L("kind", f.kind), metrics.L(metrics.LabelResult, result))
	return ok, nil
}
