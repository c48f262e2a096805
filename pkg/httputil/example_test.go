package httputil_test

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/spxlab/pkg/config"
	"github.com/wonny/spxlab/pkg/httputil"
	"github.com/wonny/spxlab/pkg/logger"
	"github.com/wonny/spxlab/pkg/redis"
)

// Example_basic demonstrates fetching the constituents page
func Example_basic() {
	cfg := &config.Config{
		Env:      "production",
		LogLevel: "info",
	}
	log := logger.New(cfg)

	// Create HTTP client (SSOT)
	client := httputil.New(cfg, log)

	ctx := context.Background()
	body, err := client.GetBody(ctx, "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies")
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}

	fmt.Printf("Fetched %d bytes\n", len(body))
}

// Example_localLimiter throttles requests inside a single process
func Example_localLimiter() {
	cfg := &config.Config{Env: "production", LogLevel: "info"}

	client := httputil.NewWithTimeout(cfg, logger.New(cfg), 10*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithLimiter(httputil.NewLocalLimiter(1))

	_ = client
}

// Example_sharedLimiter shares one limit across the scheduler and CLI through Redis
func Example_sharedLimiter() {
	cfg := &config.Config{
		Env:      "production",
		LogLevel: "info",
		Redis:    config.RedisConfig{Enabled: true, Host: "localhost", Port: "6379"},
	}

	rdb, err := redis.New(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Redis unavailable: %v\n", err)
		return
	}
	defer rdb.Close()

	limiter := redis.NewRateLimiter(rdb, "spxlab").Bind(redis.ConstituentsRateLimit(1))
	client := httputil.New(cfg, logger.New(cfg)).WithLimiter(limiter)

	_ = client
}
