// Package ratelimit throttles websocket upgrades per source IP, backed by
// Redis when the room directory is enabled and local memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/config"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
)

// RateLimiter holds the per-concern limiter instances.
type RateLimiter struct {
	wsIP        *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
}

// NewRateLimiter creates a RateLimiter from the validated config.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "Rate limiter using memory store")
	}

	return &RateLimiter{
		wsIP:        limiter.New(store, wsIPRate),
		store:       store,
		redisClient: redisClient,
	}, nil
}

// CheckWebSocket reports whether a new websocket upgrade from this IP is
// allowed. On rejection the 429 response is already written. Store errors
// fail open.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this IP"})
		return false
	}
	return true
}
