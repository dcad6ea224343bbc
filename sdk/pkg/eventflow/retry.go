package eventflow

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

// RetryConfig 指数退避重试配置
type RetryConfig struct {
	MaxAttempts     int           // 最大尝试次数（含首次）
	BaseDelay       time.Duration // 初始退避时间
	MaxDelay        time.Duration // 退避时间上限
	ExponentialBase float64       // 退避因子
	Jitter          bool          // 抖动：退避时间随机取计算值的50%-100%

	// RetryPredicate 判断一个错误是否可重试
	// 为nil时所有错误都重试。注意ErrCircuitOpen是可重试的：
	// 熔断器会快速失败（底层操作不被调用），但重试循环自身的退避等待仍然生效
	RetryPredicate func(error) bool
}

// RetryExecutor 指数退避重试执行器
type RetryExecutor struct {
	config RetryConfig
}

// NewRetryExecutor 创建重试执行器
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryMaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultRetryBaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryMaxDelay
	}
	if config.ExponentialBase <= 1 {
		config.ExponentialBase = DefaultRetryExponentialBase
	}

	return &RetryExecutor{config: config}
}

// Execute 执行操作，失败后按指数退避重试
// 耗尽尝试次数后返回最后一次的错误。
// 退避等待期间不持有任何锁，且可被ctx取消。
func (r *RetryExecutor) Execute(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.delayFor(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if r.config.RetryPredicate != nil && !r.config.RetryPredicate(lastErr) {
			// 不可重试的错误直接返回
			return lastErr
		}

		if attempt < r.config.MaxAttempts-1 {
			logger.Debug("Operation failed, will retry",
				"attempt", attempt+1,
				"maxAttempts", r.config.MaxAttempts,
				"error", lastErr)
		}
	}

	logger.Warn("Retry attempts exhausted",
		"maxAttempts", r.config.MaxAttempts,
		"error", lastErr)
	return lastErr
}

// delayFor 计算第attempt次失败后的退避时间
// min(baseDelay * exponentialBase^attempt, maxDelay)，可选抖动
func (r *RetryExecutor) delayFor(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.ExponentialBase, float64(attempt))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		// 50%-100%的抖动，避免重试风暴
		delay = delay * (0.5 + 0.5*rand.Float64())
	}

	return time.Duration(delay)
}

// sleep 可取消的等待
func (r *RetryExecutor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
