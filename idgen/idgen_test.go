package idgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/testkit"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNextLayout(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	gen, err := New(&Config{Driver: DriverMemory}, WithClock(fixedClock(now)))
	require.NoError(t, err)

	ctx := context.Background()
	first, err := gen.Next(ctx, "order")
	require.NoError(t, err)
	second, err := gen.Next(ctx, "order")
	require.NoError(t, err)

	wantTS := now.Unix() - DefaultEpoch
	assert.Equal(t, wantTS<<CountBits|1, first)
	assert.Equal(t, wantTS<<CountBits|2, second)

	at, serial := Decompose(second, DefaultEpoch)
	assert.Equal(t, now.Unix(), at.Unix())
	assert.Equal(t, int64(2), serial)
}

func TestRedisDriverUsesDailyKey(t *testing.T) {
	conn, mr := testkit.NewMiniRedisConnector(t)
	now := time.Date(2025, 9, 26, 8, 30, 0, 0, time.UTC)
	gen, err := New(&Config{Driver: DriverRedis, DayKeyTTL: 48 * time.Hour},
		WithRedisConnector(conn),
		WithClock(fixedClock(now)),
		WithLogger(testkit.NewLogger()),
		WithMeter(testkit.NewMeter()),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := gen.Next(ctx, "order")
		require.NoError(t, err)
	}

	v, err := mr.Get("icr:order:2025:09:26")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	assert.Equal(t, 48*time.Hour, mr.TTL("icr:order:2025:09:26"))

	// 不同序列互不影响
	id, err := gen.Next(ctx, "shop")
	require.NoError(t, err)
	_, serial := Decompose(id, DefaultEpoch)
	assert.Equal(t, int64(1), serial)
}

func TestNextConcurrentUnique(t *testing.T) {
	conn, _ := testkit.NewMiniRedisConnector(t)
	gen, err := New(&Config{}, WithRedisConnector(conn))
	require.NoError(t, err)

	const workers, perWorker = 8, 50
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := gen.Next(context.Background(), "order")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestNextErrors(t *testing.T) {
	ctx := context.Background()

	gen, err := New(&Config{Driver: DriverMemory})
	require.NoError(t, err)
	_, err = gen.Next(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSequence)

	early, err := New(&Config{Driver: DriverMemory},
		WithClock(fixedClock(time.Unix(DefaultEpoch-1, 0))))
	require.NoError(t, err)
	_, err = early.Next(ctx, "order")
	assert.ErrorIs(t, err, ErrClockBeforeEpoch)
}

func TestSequenceOverflow(t *testing.T) {
	conn, mr := testkit.NewMiniRedisConnector(t)
	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	gen, err := New(&Config{}, WithRedisConnector(conn), WithClock(fixedClock(now)))
	require.NoError(t, err)

	require.NoError(t, mr.Set("icr:order:2025:10:01", "4294967295"))
	_, err = gen.Next(context.Background(), "order")
	assert.ErrorIs(t, err, ErrSequenceOverflow)
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{Driver: DriverRedis})
	assert.ErrorIs(t, err, ErrConnectorNil)

	_, err = New(&Config{Driver: "etcd"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Driver: DriverMemory, Location: "Mars/Olympus"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// rejectExpire 让所有 EXPIRE 命令失败
type rejectExpire struct{}

func (rejectExpire) DialHook(next redis.DialHook) redis.DialHook { return next }

func (rejectExpire) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "expire" {
			err := errors.New("expire refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (rejectExpire) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisDriverLogsExpireFailure(t *testing.T) {
	conn, mr := testkit.NewMiniRedisConnector(t)
	conn.GetClient().AddHook(rejectExpire{})

	path := filepath.Join(t.TempDir(), "idgen.log")
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	now := time.Date(2025, 9, 26, 8, 30, 0, 0, time.UTC)
	gen, err := New(&Config{Driver: DriverRedis, DayKeyTTL: time.Hour},
		WithRedisConnector(conn),
		WithClock(fixedClock(now)),
		WithLogger(logger),
	)
	require.NoError(t, err)

	id, err := gen.Next(context.Background(), "order")
	require.NoError(t, err, "ttl failure must not fail the id")
	_, serial := Decompose(id, DefaultEpoch)
	assert.Equal(t, int64(1), serial)
	assert.Zero(t, mr.TTL("icr:order:2025:09:26"))

	logger.Flush()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "failed to set id day key ttl")
	assert.Contains(t, out, "icr:order:2025:09:26")
	assert.Contains(t, out, "expire refused")
}
