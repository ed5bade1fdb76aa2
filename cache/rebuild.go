package cache

import (
	"context"
	"sync"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
)

type rebuildTask struct {
	ctx context.Context
	key string
	req Request
}

// rebuilder 逻辑过期的异步重建池
// 同一个 key 在进程内同时只排队一次，跨进程由分布式锁保证单一执行者
type rebuilder struct {
	mu      sync.RWMutex
	closed  bool
	tasks   chan rebuildTask
	pending sync.Map
	wg      sync.WaitGroup
	logger  clog.Logger
	count   metrics.Counter
}

func newRebuilder(workers, queue int, logger clog.Logger, count metrics.Counter, run func(rebuildTask)) *rebuilder {
	r := &rebuilder{
		tasks:  make(chan rebuildTask, queue),
		logger: logger,
		count:  count,
	}
	for range workers {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for t := range r.tasks {
				run(t)
				r.pending.Delete(t.key)
			}
		}()
	}
	return r
}

func (r *rebuilder) submit(t rebuildTask) {
	if _, loaded := r.pending.LoadOrStore(t.key, struct{}{}); loaded {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.pending.Delete(t.key)
		return
	}
	select {
	case r.tasks <- t:
	default:
		r.pending.Delete(t.key)
		r.count.Inc(t.ctx, metrics.L(metrics.LabelResult, "dropped"))
		r.logger.WarnContext(t.ctx, "rebuild queue full, task dropped", clog.String("key", t.key))
	}
}

// close 停止接收任务并等待队列中的任务执行完
func (r *rebuilder) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()
	r.wg.Wait()
}
