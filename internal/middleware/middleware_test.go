package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/account-service/internal/apperror"
	"github.com/iliyamo/account-service/internal/config"
	"github.com/iliyamo/account-service/internal/utils"
)

const secret = "access-secret"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAuthenticated(t *testing.T) {
	user := utils.TokenUser{ID: 7, Email: "a@x.io", UserType: "client"}
	valid, err := utils.NewAccessToken(secret, user, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := utils.NewAccessToken(secret, user, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	foreign, err := utils.NewAccessToken("other-secret", user, time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "missing", header: "", want: "Token not provided"},
		{name: "no bearer", header: "Token " + valid.Token, want: "Token not provided"},
		{name: "empty bearer", header: "Bearer ", want: "Token not provided"},
		{name: "malformed", header: "Bearer abc.def", want: "Invalid token"},
		{name: "wrong secret", header: "Bearer " + foreign.Token, want: "Invalid token"},
		{name: "expired", header: "Bearer " + expired.Token, want: "Token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/user", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			called := false
			err := Authenticated(secret)(func(echo.Context) error { called = true; return nil })(c)

			ae, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusUnauthorized, ae.Status)
			assert.Equal(t, tt.want, ae.Message)
			assert.False(t, called)
		})
	}

	t.Run("valid", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/user", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+valid.Token)
		c := e.NewContext(req, httptest.NewRecorder())
		err := Authenticated(secret)(func(c echo.Context) error {
			got, ok := CurrentUser(c)
			require.True(t, ok)
			assert.Equal(t, user, got)
			assert.Equal(t, "7", currentUserID(c))
			return nil
		})(c)
		require.NoError(t, err)
	})
}

func rateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	e := echo.New()
	e.POST("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewTokenBucket(rateLimitConfig(), rdb, nil))

	for i := 0; i < 2; i++ {
		rec := serve(e, http.MethodPost, "/auth/login")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := serve(e, http.MethodPost, "/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"message":"Too many requests"`)
}

func TestTokenBucket_PassThrough(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := rateLimitConfig()
	cfg.Capacity = 1

	disabled := cfg
	disabled.Enabled = false

	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.POST("/off", ok, NewTokenBucket(disabled, rdb, nil))
	e.POST("/nil", ok, NewTokenBucket(cfg, nil, nil))
	e.POST("/down", ok, NewTokenBucket(cfg, rdb, nil))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/off").Code)
		assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/nil").Code)
	}

	mr.Close()
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/down").Code, "redis errors must not block requests")
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/auth/login")
	c.Set(userIDKey, "42")

	cfg := rateLimitConfig()
	assert.Equal(t, "rl:ip:192.0.2.10:route:POST /auth/login", buildRateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:42", buildRateKey(cfg, c))
	cfg.KeyStrategy = "anything"
	assert.Equal(t, "rl:ip:192.0.2.10:user:42:route:POST /auth/login", buildRateKey(cfg, c))
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		TTL:          time.Minute,
		KeyStrategy:  "path_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
		Methods:      map[string]bool{http.MethodGet: true},
	}
}

func TestRedisCache_HitMissAndInvalidate(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := cacheConfig()
	e := echo.New()
	calls := map[string]int{}
	cache := NewRedisCache(cfg, rdb, nil)
	e.GET("/user/:id", func(c echo.Context) error {
		calls[c.Param("id")]++
		return c.JSON(http.StatusOK, map[string]any{"id": c.Param("id"), "n": calls[c.Param("id")]})
	}, cache)
	e.PUT("/user/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewCacheInvalidator(cfg, rdb, nil))

	first := serve(e, http.MethodGet, "/user/1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve(e, http.MethodGet, "/user/1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.Equal(t, 1, calls["1"])

	other := serve(e, http.MethodGet, "/user/2")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"), "concrete paths are cached separately")

	require.Equal(t, http.StatusOK, serve(e, http.MethodPut, "/user/1").Code)
	keys, err := rdb.Keys(t.Context(), "cache:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)

	third := serve(e, http.MethodGet, "/user/1")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls["1"])
}

func TestRedisCache_HitKeepsOwnRequestID(t *testing.T) {
	_, rdb := newRedis(t)
	e := echo.New()
	e.Use(echomw.RequestID())
	e.GET("/user/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	}, NewRedisCache(cacheConfig(), rdb, nil))

	miss := serve(e, http.MethodGet, "/user/1")
	require.Equal(t, "MISS", miss.Header().Get("X-Cache"))
	hit := serve(e, http.MethodGet, "/user/1")
	require.Equal(t, "HIT", hit.Header().Get("X-Cache"))

	ids := hit.Header().Values(echo.HeaderXRequestID)
	require.Len(t, ids, 1)
	assert.NotEqual(t, miss.Header().Get(echo.HeaderXRequestID), ids[0])
}

func TestRedisCache_SkipsErrorsAndFailedMutations(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := cacheConfig()
	e := echo.New()
	e.GET("/missing", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "User not found"})
	}, NewRedisCache(cfg, rdb, nil))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, NewRedisCache(cfg, rdb, nil))
	e.DELETE("/fail", func(c echo.Context) error { return apperror.NotFound("User not found") },
		NewCacheInvalidator(cfg, rdb, nil))

	serve(e, http.MethodGet, "/missing")
	assert.Equal(t, "MISS", serve(e, http.MethodGet, "/missing").Header().Get("X-Cache"))

	serve(e, http.MethodGet, "/ok")
	serve(e, http.MethodDelete, "/fail")
	assert.Equal(t, "HIT", serve(e, http.MethodGet, "/ok").Header().Get("X-Cache"), "failed mutations keep the cache")
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
