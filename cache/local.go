package cache

import (
	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/ceyewan/seckill/xerrors"
)

// local 进程内 L1，保存已解析的条目
type local struct {
	cache *otter.Cache[string, entry]
}

func newLocal(cfg *Config) (*local, error) {
	if cfg.LocalTTL <= 0 {
		return nil, nil
	}
	c, err := otter.New(&otter.Options[string, entry]{
		MaximumSize:      cfg.LocalMaxSize,
		StatsRecorder:    stats.NewCounter(),
		ExpiryCalculator: otter.ExpiryWriting[string, entry](cfg.LocalTTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: build local cache")
	}
	return &local{cache: c}, nil
}

func (l *local) get(key string) (entry, bool) {
	if l == nil {
		return entry{}, false
	}
	return l.cache.GetIfPresent(key)
}

func (l *local) set(key string, ent entry) {
	if l == nil || ent.state == entryMiss {
		return
	}
	l.cache.Set(key, ent)
}

func (l *local) invalidate(keys ...string) {
	if l == nil {
		return
	}
	for _, k := range keys {
		l.cache.Invalidate(k)
	}
}
