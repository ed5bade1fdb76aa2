package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/auth"
	"github.com/ceyewan/seckill/cache"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/idem"
	"github.com/ceyewan/seckill/idgen"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/shop"
	"github.com/ceyewan/seckill/testkit"
	"github.com/ceyewan/seckill/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const secret = "a-test-secret-that-is-long-enough-for-hs256"

type response struct {
	Success  bool            `json:"success"`
	ErrorMsg string          `json:"errorMsg"`
	Data     json.RawMessage `json:"data"`
}

type env struct {
	srv     *Server
	auth    auth.Authenticator
	catalog *catalog.Catalog
	mr      *miniredis.Miniredis
	ctx     context.Context
}

func newEnv(t *testing.T, cfg *Config, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()

	sqlite := testkit.NewSQLiteConnector(t)
	database, err := db.New(&db.Config{Driver: db.DriverSQLite}, db.WithSQLiteConnector(sqlite))
	require.NoError(t, err)
	cat, err := catalog.New(database)
	require.NoError(t, err)
	require.NoError(t, cat.Migrate(ctx))

	redisConn, mr := testkit.NewMiniRedisConnector(t)
	engine, err := cache.New(&cache.Config{}, cache.WithRedisConnector(redisConn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	shops, err := shop.New(&shop.Config{}, cat, engine)
	require.NoError(t, err)

	ids, err := idgen.New(&idgen.Config{Driver: idgen.DriverMemory})
	require.NoError(t, err)
	queue, err := mq.New(&mq.Config{Driver: mq.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })
	gate, err := seckill.New(&seckill.Config{},
		seckill.WithCounterStore(seckill.NewMemoryCounter()),
		seckill.WithVoucherSource(cat),
		seckill.WithIDGenerator(ids),
		seckill.WithPublisher(queue),
	)
	require.NoError(t, err)

	authn, err := auth.New(&auth.Config{SecretKey: secret, Issuer: "seckill"}, auth.WithContextFunc(UserContext))
	require.NoError(t, err)

	opts = append([]Option{
		WithLogger(testkit.NewLogger()),
		WithMeter(testkit.NewMeter()),
		WithAdmitter(gate),
		WithShopService(shops),
		WithVoucherStore(cat),
		WithAuthenticator(authn),
		WithHealthChecks(sqlite, redisConn),
	}, opts...)
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	return &env{srv: srv, auth: authn, catalog: cat, mr: mr, ctx: ctx}
}

func (e *env) token(t *testing.T, userID int64, roles ...string) string {
	t.Helper()
	tok, err := e.auth.GenerateToken(e.ctx, auth.NewClaims(userID, "user"+strconv.FormatInt(userID, 10), roles...))
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w.Code, resp
}

func (e *env) addVoucher(t *testing.T, admin string, stock int) int64 {
	t.Helper()
	now := time.Now()
	code, resp := e.do(t, http.MethodPost, "/voucher/seckill", admin, map[string]any{
		"shopId":      1,
		"title":       "100元代金券",
		"payValue":    8000,
		"actualValue": 10000,
		"stock":       stock,
		"beginTime":   now.Add(-time.Hour),
		"endTime":     now.Add(time.Hour),
	})
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success, resp.ErrorMsg)
	var id int64
	require.NoError(t, json.Unmarshal(resp.Data, &id))
	return id
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrDependencyNil)

	_, err = New(&Config{SeckillRate: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, &Config{})

	code, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	e.mr.Close()
	code, _ = e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestSeckillRequiresLogin(t *testing.T) {
	e := newEnv(t, &Config{})

	code, resp := e.do(t, http.MethodPost, "/voucher-order/seckill/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)
}

func TestSeckillFlow(t *testing.T) {
	e := newEnv(t, &Config{})
	admin := e.token(t, 1, "admin")
	id := e.addVoucher(t, admin, 1)
	path := "/voucher-order/seckill/" + strconv.FormatInt(id, 10)

	buyer := e.token(t, 1001)
	code, resp := e.do(t, http.MethodPost, path, buyer, nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success, resp.ErrorMsg)
	var orderID int64
	require.NoError(t, json.Unmarshal(resp.Data, &orderID))
	assert.Positive(t, orderID)

	_, resp = e.do(t, http.MethodPost, path, buyer, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "不能重复下单", resp.ErrorMsg)

	_, resp = e.do(t, http.MethodPost, path, e.token(t, 1002), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "库存不足", resp.ErrorMsg)

	_, resp = e.do(t, http.MethodPost, "/voucher-order/seckill/999", buyer, nil)
	assert.Equal(t, "优惠券不存在", resp.ErrorMsg)

	_, resp = e.do(t, http.MethodPost, "/voucher-order/seckill/abc", buyer, nil)
	assert.Equal(t, "优惠券不存在", resp.ErrorMsg)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	e := newEnv(t, &Config{})
	user := e.token(t, 7)

	code, _ := e.do(t, http.MethodPost, "/voucher/seckill", user, map[string]any{"shopId": 1})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPut, "/shop", user, map[string]any{"id": 1})
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := e.do(t, http.MethodPost, "/voucher/seckill", e.token(t, 1, "admin"), map[string]any{"shopId": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, msgBadRequest, resp.ErrorMsg)
}

func TestShopRoutes(t *testing.T) {
	e := newEnv(t, &Config{})
	admin := e.token(t, 1, "admin")

	_, resp := e.do(t, http.MethodGet, "/shop/42", "", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, msgShopNotFound, resp.ErrorMsg)

	code, resp := e.do(t, http.MethodPost, "/shop", admin, map[string]any{"name": "103茶餐厅", "area": "大关"})
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success, resp.ErrorMsg)
	var id int64
	require.NoError(t, json.Unmarshal(resp.Data, &id))
	path := "/shop/" + strconv.FormatInt(id, 10)

	_, resp = e.do(t, http.MethodGet, path, "", nil)
	require.True(t, resp.Success, resp.ErrorMsg)
	var got catalog.Shop
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "103茶餐厅", got.Name)

	_, resp = e.do(t, http.MethodPut, "/shop", admin, map[string]any{"name": "x"})
	assert.Equal(t, msgShopIDMissing, resp.ErrorMsg)

	_, resp = e.do(t, http.MethodPut, "/shop", admin, map[string]any{"id": id, "name": "104茶餐厅"})
	require.True(t, resp.Success, resp.ErrorMsg)

	_, resp = e.do(t, http.MethodGet, path, "", nil)
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "104茶餐厅", got.Name)

	_, resp = e.do(t, http.MethodPut, "/shop", admin, map[string]any{"id": id + 100, "name": "y"})
	assert.Equal(t, msgShopNotFound, resp.ErrorMsg)
}

func TestSeckillRateLimitedPerUser(t *testing.T) {
	limiter, err := ratelimit.New(&ratelimit.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	e := newEnv(t, &Config{SeckillRate: 0.001, SeckillBurst: 1}, WithLimiter(limiter))
	first := e.token(t, 11)

	code, _ := e.do(t, http.MethodPost, "/voucher-order/seckill/999", first, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/voucher-order/seckill/999", first, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = e.do(t, http.MethodPost, "/voucher-order/seckill/999", e.token(t, 12), nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAdminCreateIsIdempotent(t *testing.T) {
	guard, err := idem.New(&idem.Config{Driver: idem.DriverMemory})
	require.NoError(t, err)
	e := newEnv(t, &Config{}, WithIdempotency(guard))
	admin := e.token(t, 1, "admin")

	post := func(key string) *httptest.ResponseRecorder {
		body := `{"shopId":1,"title":"50元代金券","stock":3,` +
			`"beginTime":"2026-01-01T00:00:00Z","endTime":"2099-01-01T00:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/voucher/seckill", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+admin)
		req.Header.Set(guard.Header(), key)
		w := httptest.NewRecorder()
		e.srv.Handler().ServeHTTP(w, req)
		return w
	}

	first := post("create-50")
	require.Equal(t, http.StatusOK, first.Code)
	retry := post("create-50")
	require.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, first.Body.String(), retry.Body.String())
	assert.Equal(t, "true", retry.Header().Get("Idempotent-Replayed"))

	other := post("create-50-b")
	require.Equal(t, http.StatusOK, other.Code)
	assert.NotEqual(t, first.Body.String(), other.Body.String())

	ids, err := e.catalog.ListVoucherIDs(e.ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

type stubGate struct{ err error }

func (g stubGate) Admit(context.Context, int64) (*seckill.Admission, error) { return nil, g.err }
func (g stubGate) Preload(context.Context, int64, int) error               { return nil }

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"lock timeout", xerrors.Wrap(cache.ErrLockTimeout, "shop"), http.StatusServiceUnavailable, msgBusy},
		{"not started", seckill.ErrNotStarted, http.StatusOK, "还没到秒杀时间哟！"},
		{"ended", xerrors.Wrapf(seckill.ErrEnded, "voucher %d", 3), http.StatusOK, "来晚啦秒杀时间已结束！"},
		{"unauthenticated", seckill.ErrUnauthenticated, http.StatusUnauthorized, "请先登录"},
		{"invalid", xerrors.ErrInvalidInput, http.StatusBadRequest, msgBadRequest},
		{"internal", xerrors.New("redis down"), http.StatusInternalServerError, msgInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, &Config{}, WithAdmitter(stubGate{err: tc.err}))
			code, resp := e.do(t, http.MethodPost, "/voucher-order/seckill/1", e.token(t, 5), nil)
			assert.Equal(t, tc.code, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.msg, resp.ErrorMsg)
		})
	}
}
