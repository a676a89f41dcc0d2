// Package ratelimit wraps ulule/limiter/v3 for Bonfire's two guarded
// surfaces: WebSocket upgrade attempts and the administrative HTTP
// endpoints. Adapted from internal/v1/ratelimit/limiter.go with its
// auth.CustomClaims-keyed "user" tier removed — Bonfire has no
// cryptographic player identity (see DESIGN.md), so every limiter here is
// keyed by client IP instead of a JWT subject.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// Limiter bundles the two rate limiters Bonfire needs.
type Limiter struct {
	wsIP    *limiter.Limiter
	adminIP *limiter.Limiter
}

// New constructs a Limiter backed by Redis when redisClient is non-nil,
// or an in-process memory store otherwise.
func New(wsRate, adminRate string, redisClient *redis.Client) (*Limiter, error) {
	wsFormatted, err := limiter.NewRateFromFormatted(wsRate)
	if err != nil {
		return nil, fmt.Errorf("invalid ws rate limit format: %w", err)
	}
	adminFormatted, err := limiter.NewRateFromFormatted(adminRate)
	if err != nil {
		return nil, fmt.Errorf("invalid admin rate limit format: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "bonfire:limiter:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limiter store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-process memory store")
	}

	return &Limiter{
		wsIP:    limiter.New(store, wsFormatted),
		adminIP: limiter.New(store, adminFormatted),
	}, nil
}

// WsMiddleware gates WebSocket upgrade attempts by client IP.
func (l *Limiter) WsMiddleware() gin.HandlerFunc {
	return l.middleware(l.wsIP, "ws")
}

// AdminMiddleware gates administrative HTTP endpoints by client IP.
func (l *Limiter) AdminMiddleware() gin.HandlerFunc {
	return l.middleware(l.adminIP, "admin")
}

func (l *Limiter) middleware(lim *limiter.Limiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		ctx := c.Request.Context()

		limitCtx, err := lim.Get(ctx, key)
		if err != nil {
			// Fail open: availability over strict enforcement if the store
			// itself is unreachable.
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limitCtx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limitCtx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limitCtx.Reset, 10))

		if limitCtx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(endpoint).Inc()
			c.Header("Retry-After", strconv.FormatInt(limitCtx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
				"code":  "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(endpoint).Inc()
		c.Next()
	}
}
