package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/auth"
	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/idgen"
	"github.com/ceyewan/seckill/internal/server"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/shop"
	"github.com/ceyewan/seckill/xerrors"
)

const secret = "a-test-secret-that-is-long-enough-for-hs256"

func init() {
	gin.SetMode(gin.TestMode)
}

func localConfig(t *testing.T, mr *miniredis.Miniredis) *Config {
	t.Helper()
	return &Config{
		Log:    clog.Config{Level: "error", Format: "json", Output: filepath.Join(t.TempDir(), "app.log")},
		HTTP:   server.Config{Addr: "127.0.0.1:0"},
		Redis:  connector.RedisConfig{Name: "redis", Addr: mr.Addr()},
		SQLite: &connector.SQLiteConfig{Name: "sqlite", Path: filepath.Join(t.TempDir(), "seckill.db")},
		DB:     db.Config{Driver: db.DriverSQLite},
		Bloom:  bloom.Config{Driver: bloom.DriverRedis},
		IDGen:  idgen.Config{Driver: idgen.DriverRedis},
		MQ:     mq.Config{Driver: mq.DriverMemory},
		Auth:   auth.Config{SecretKey: secret, Issuer: ServiceName},
		Shop:   shop.Config{Strategy: "logical_expire"},
		Startup: StartupConfig{
			BloomBootstrap: true,
			PreloadStock:   true,
			WarmupShops:    true,
		},
	}
}

func newApp(t *testing.T, cfg *Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yaml := `
redis:
  addr: 127.0.0.1:6379
db:
  driver: sqlite
sqlite:
  path: /tmp/seckill.db
mq:
  driver: memory
fulfillment:
  workers: 8
  base_backoff: 200ms
http:
  addr: ":9000"
  seckill_rate: 5
startup:
  migrate: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seckill.yaml"), []byte(yaml), 0o644))
	t.Setenv("SKAPP_REDIS_ADDR", "redis:6380")

	cfg, err := Load(context.Background(), "seckill", "SKAPP", dir)
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, db.DriverSQLite, cfg.DB.Driver)
	require.NotNil(t, cfg.SQLite)
	assert.Equal(t, "/tmp/seckill.db", cfg.SQLite.Path)
	assert.Equal(t, mq.DriverMemory, cfg.MQ.Driver)
	assert.Equal(t, 8, cfg.Fulfillment.Workers)
	assert.Equal(t, 200*time.Millisecond, cfg.Fulfillment.BaseBackoff)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.InDelta(t, 5.0, cfg.HTTP.SeckillRate, 1e-9)
	assert.True(t, cfg.Startup.Migrate)
	assert.Nil(t, cfg.NATS)
}

func TestNewRequiresDriverConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := localConfig(t, mr)
	cfg.SQLite = nil
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	cfg = localConfig(t, mr)
	cfg.MQ.Driver = mq.DriverJetStream
	_, err = New(context.Background(), cfg)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfigNil)
}

func TestEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newApp(t, localConfig(t, mr))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, a.catalog.Migrate(ctx))
	s := &catalog.Shop{Name: "103茶餐厅", Area: "大关"}
	require.NoError(t, a.catalog.CreateShop(ctx, s))
	v := &catalog.Voucher{ShopID: s.ID, Title: "100元代金券", PayValue: 8000, ActualValue: 10000}
	sv := &catalog.SeckillVoucher{Stock: 2, BeginTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour)}
	require.NoError(t, a.catalog.CreateSeckillVoucher(ctx, v, sv))

	require.NoError(t, a.Prepare(ctx))
	assert.True(t, mr.Exists(shop.Key(s.ID)))
	stock, err := mr.Get("seckill:stock:" + strconv.FormatInt(v.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, "2", stock)

	runCtx, stop := context.WithCancel(ctx)
	require.NoError(t, a.Start(runCtx))
	done := make(chan error, 1)
	go func() { done <- a.Serve(runCtx) }()

	authn, err := auth.New(&auth.Config{SecretKey: secret, Issuer: ServiceName})
	require.NoError(t, err)
	token, err := authn.GenerateToken(ctx, auth.NewClaims(1001, "buyer"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/voucher-order/seckill/"+strconv.FormatInt(v.ID, 10), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	require.Eventually(t, func() bool {
		_, err := a.catalog.FindOrder(ctx, 1001, v.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	got, err := a.catalog.GetVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	w = httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shop/999999", nil))
	assert.Contains(t, w.Body.String(), "店铺不存在！")

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("app did not stop")
	}
}
