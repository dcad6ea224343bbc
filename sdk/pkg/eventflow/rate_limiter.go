package eventflow

import (
	"context"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"golang.org/x/time/rate"
)

// RateLimitConfig 流量控制配置
type RateLimitConfig struct {
	Enabled       bool    // 是否启用流量控制
	RatePerSecond float64 // 每秒允许的发布数
	BurstSize     int     // 突发容量
}

// RateLimiter 发布端流量控制器
// 在熔断器之前生效，作为发布热路径的背压手段
type RateLimiter struct {
	limiter   *rate.Limiter
	burstSize int
	rateLimit rate.Limit
	enabled   bool
}

// NewRateLimiter 创建流量控制器
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if !config.Enabled {
		return &RateLimiter{enabled: false}
	}

	rateLimit := rate.Limit(config.RatePerSecond)
	return &RateLimiter{
		limiter:   rate.NewLimiter(rateLimit, config.BurstSize),
		burstSize: config.BurstSize,
		rateLimit: rateLimit,
		enabled:   true,
	}
}

// Wait 等待令牌
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if !rl.enabled {
		return nil // 未启用流量控制，直接通过
	}

	start := time.Now()
	if err := rl.limiter.Wait(ctx); err != nil {
		return err
	}

	waitTime := time.Since(start)
	if waitTime > 100*time.Millisecond {
		logger.Warn("Rate limiter caused significant publish delay",
			"waitTime", waitTime,
			"rateLimit", float64(rl.rateLimit),
			"burstSize", rl.burstSize)
	}

	return nil
}

// Allow 检查是否允许立即通过（非阻塞）
func (rl *RateLimiter) Allow() bool {
	if !rl.enabled {
		return true
	}
	return rl.limiter.Allow()
}
