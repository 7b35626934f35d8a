package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/salonbook/salonapi/internal/respond"
)

// RateLimiter counts requests per key in fixed Redis windows so that limits
// hold across every API instance.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	rs     *respond.Responder
	log    logrus.FieldLogger
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string, rs *respond.Responder, log logrus.FieldLogger) *RateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: prefix,
		rs:     rs,
		log:    log.WithField("component", "middleware.ratelimit"),
	}
}

// Allow increments the counter for key and reports whether the request fits
// in the current window, along with the time until the window resets. On a
// Redis error it allows the request and returns the error.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}

	// A fresh counter has no expiry yet; start its window.
	reset := ttl.Val()
	if reset < 0 {
		if err := rl.redis.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis error: %w", err)
		}
		reset = rl.window
	}
	return incr.Val() <= int64(rl.limit), reset, nil
}

// Handler limits requests per client IP.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		allowed, reset, err := rl.Allow(r.Context(), key)
		if err != nil {
			rl.log.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if !allowed {
			secs := int(reset.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("X-RateLimit-Remaining", "0")
			rl.rs.Fail(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP keys on RemoteAddr. The router rewrites it from forwarding headers
// only when proxy headers are configured as trusted, so by default it is the
// socket peer and cannot be spoofed per request.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
