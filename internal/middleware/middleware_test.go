package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gig-marketplace/backend/internal/auth"
	"github.com/gig-marketplace/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "middleware-secret"

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Use(LoggerMiddleware(zap.NewNop()))
	app.Use(RateLimitMiddleware(nil, "api", 10, time.Minute))
	app.Get("/open", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	protected := app.Group("/p", AuthMiddleware(testSecret, zap.NewNop()))
	protected.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": GetUserID(c).String(), "role": GetRole(c)})
	})
	protected.Post("/replay", RequirePermission(rbac.PermReplayWebhooks), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestRequestID(t *testing.T) {
	app := newApp()
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"propagated", "req-123", true},
		{"missing", "", false},
		{"too long", strings.Repeat("a", 200), false},
		{"whitespace", "abc def", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/open", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			got := resp.Header.Get(HeaderRequestID)
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				_, err := uuid.Parse(got)
				assert.NoError(t, err, "minted id must be a uuid")
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp()
	user := uuid.New()
	tok, err := auth.GenerateJWT(testSecret, user, rbac.RoleSeller, time.Hour)
	require.NoError(t, err)
	forged, err := auth.GenerateJWT("other-secret", user, rbac.RoleSeller, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Token " + tok, fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, fiber.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"valid", "Bearer " + tok, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/p/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	app := newApp()
	for role, want := range map[string]int{
		rbac.RoleSeller: fiber.StatusForbidden,
		rbac.RoleBuyer:  fiber.StatusForbidden,
		rbac.RoleAdmin:  fiber.StatusNoContent,
	} {
		tok, err := auth.GenerateJWT(testSecret, uuid.New(), role, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest("POST", "/p/replay", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, role)
	}
}

type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func (m *memCounter) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.hits == nil {
		m.hits = map[string]int64{}
	}
	m.hits[key]++
	return m.hits[key], nil
}

func TestRateLimit(t *testing.T) {
	counter := &memCounter{}
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/open", rateLimit(counter, "webhook", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	protected := app.Group("/p", AuthMiddleware(testSecret, zap.NewNop()), rateLimit(counter, "api", 1, time.Minute))
	protected.Get("/me", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	t.Run("by ip", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp, err := app.Test(httptest.NewRequest("GET", "/open", nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
		}
		resp, err := app.Test(httptest.NewRequest("GET", "/open", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, codeRateLimited, body["code"])
		assert.NotEmpty(t, body["request_id"])
	})

	t.Run("by user", func(t *testing.T) {
		first, err := auth.GenerateJWT(testSecret, uuid.New(), rbac.RoleBuyer, time.Hour)
		require.NoError(t, err)
		second, err := auth.GenerateJWT(testSecret, uuid.New(), rbac.RoleBuyer, time.Hour)
		require.NoError(t, err)

		status := func(tok string) int {
			req := httptest.NewRequest("GET", "/p/me", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := app.Test(req)
			require.NoError(t, err)
			return resp.StatusCode
		}
		assert.Equal(t, fiber.StatusNoContent, status(first))
		assert.Equal(t, fiber.StatusTooManyRequests, status(first))
		assert.Equal(t, fiber.StatusNoContent, status(second), "each user has its own window")
	})

	t.Run("counter down fails open", func(t *testing.T) {
		counter.mu.Lock()
		counter.err = errors.New("redis unavailable")
		counter.mu.Unlock()
		resp, err := app.Test(httptest.NewRequest("GET", "/open", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	})
}
