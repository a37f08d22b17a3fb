package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests per client in fixed windows stored in Redis, so
// the budget is shared by every replica. While Redis is unreachable it degrades to
// an in-process limiter with the same budget.
type RedisRateLimiter struct {
	rdb      *redis.Client
	limit    int64
	window   time.Duration
	prefix   string
	fallback *RateLimiter
	now      func() time.Time
}

// INCR then arm the TTL on the first hit only, atomically.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{
		rdb:      rdb,
		limit:    int64(limit),
		window:   window,
		prefix:   prefix,
		fallback: NewRateLimiter(limit, window),
		now:      time.Now,
	}
}

func (rl *RedisRateLimiter) Middleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			now := rl.now()
			count, err := rl.incr(r.Context(), rl.windowKey(client, now))
			if err != nil {
				logger.WarnContext(r.Context(), "redis rate limiter unavailable, using local limiter", "err", err)
				if !rl.fallback.allow(client, now) {
					tooManyRequests(w, rl.window)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(rl.limit-count, 0), 10))
			if count > rl.limit {
				tooManyRequests(w, rl.untilNextWindow(now))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// windowKey embeds the window index, so a counter whose TTL was lost still stops
// being consulted once its window passes.
func (rl *RedisRateLimiter) windowKey(client string, now time.Time) string {
	bucket := now.UnixMilli() / rl.window.Milliseconds()
	return rl.prefix + ":" + client + ":" + strconv.FormatInt(bucket, 10)
}

func (rl *RedisRateLimiter) untilNextWindow(now time.Time) time.Duration {
	ms := rl.window.Milliseconds()
	return time.Duration(ms-now.UnixMilli()%ms) * time.Millisecond
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	if rl.rdb == nil {
		return 0, errors.New("redis client not configured")
	}
	return incrWindow.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64()
}

// RedisReadyCheck pings Redis for /readyz.
func RedisReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
