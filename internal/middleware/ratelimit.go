package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gig-marketplace/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const codeRateLimited = "RATE_LIMITED"

// windowCounter increments the hit count of key, starting its window on the
// first hit.
type windowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	rdb *redis.Client
}

func (r redisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimitMiddleware counts requests per scope in fixed windows, keyed by
// the authenticated user when known and the client ip otherwise. A nil
// client or a non-positive limit disables it.
func RateLimitMiddleware(rdb *redis.Client, scope string, limit int, window time.Duration) fiber.Handler {
	if rdb == nil {
		return rateLimit(nil, scope, limit, window)
	}
	return rateLimit(redisCounter{rdb: rdb}, scope, limit, window)
}

func rateLimit(counter windowCounter, scope string, limit int, window time.Duration) fiber.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(c *fiber.Ctx) error {
		if counter == nil || limit <= 0 {
			return c.Next()
		}

		count, err := counter.Hit(c.UserContext(), rateLimitKey(c, scope), window)
		if err != nil {
			return c.Next() // fail open
		}
		if count > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error:     "rate limit exceeded",
				Code:      codeRateLimited,
				RequestID: GetRequestID(c),
			})
		}
		return c.Next()
	}
}

func rateLimitKey(c *fiber.Ctx, scope string) string {
	if id := GetUserID(c); id != uuid.Nil {
		return "gig:ratelimit:" + scope + ":user:" + id.String()
	}
	return "gig:ratelimit:" + scope + ":ip:" + c.IP()
}
