package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		nilClient bool
		wantAllow bool
		wantErr   bool
	}{
		{name: "test environment bypass", env: "test", nilClient: true, wantAllow: true},
		{name: "development environment bypass", env: "development", nilClient: true, wantAllow: true},
		{name: "stress environment bypass", env: "stress", nilClient: true, wantAllow: true},
		{name: "nil redis in production", env: "production", nilClient: true, wantErr: true},
		{name: "first hit in production", env: "production", wantAllow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", tt.env)

			var rdb *redis.Client
			if !tt.nilClient {
				_, rdb = newTestRedis(t)
			}

			allowed, err := CheckRateLimit(context.Background(), rdb, "posts", "ip:1.2.3.4", 1, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, allowed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllow, allowed)
		})
	}
}

func TestCheckRateLimit_CountsWithinWindow(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "posts", "user:7", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, err := CheckRateLimit(ctx, rdb, "posts", "user:7", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, mr.TTL("rl:posts:user:7"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	allowed, err = CheckRateLimit(ctx, rdb, "posts", "user:7", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitByActor(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, rdb := newTestRedis(t)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-User") != "" {
			c.Locals("userID", uint(42))
		}
		return c.Next()
	})
	app.Get("/posts", RateLimitByActor(rdb, 2, 1, time.Minute, "posts"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(user bool) int {
		req := httptest.NewRequest(http.MethodGet, "/posts", nil)
		if user {
			req.Header.Set("X-User", "1")
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, do(false))
	assert.Equal(t, http.StatusTooManyRequests, do(false))

	assert.Equal(t, http.StatusOK, do(true))
	assert.Equal(t, http.StatusOK, do(true))
	assert.Equal(t, http.StatusTooManyRequests, do(true))
}

func TestRateLimitWithPolicy_RedisDown(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	tests := []struct {
		name   string
		policy FailPolicy
		want   int
	}{
		{"fail open lets request through", FailOpen, http.StatusOK},
		{"fail closed rejects request", FailClosed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/x", RateLimitWithPolicy(nil, 5, time.Minute, tt.policy, "x"), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
