package eventflow

import (
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

// CircuitState 熔断器状态
type CircuitState int32

const (
	CircuitClosed   CircuitState = iota // 关闭（正常放行）
	CircuitOpen                         // 打开（快速失败）
	CircuitHalfOpen                     // 半开（试探性放行）
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name             string        // 熔断器名称（用于日志）
	FailureThreshold int           // 连续失败阈值，达到后熔断
	RecoveryTimeout  time.Duration // 熔断后的冷却窗口

	// FailurePredicate 判断一个错误是否计入失败
	// 为nil时所有非nil错误都计入失败。发布端将其收窄为仅broker故障，
	// 避免把编程错误（如序列化失败）误判为下游降级
	FailurePredicate func(error) bool
}

// CircuitBreaker 熔断器
// 包裹一个有风险的操作，连续失败达到阈值后在冷却窗口内快速失败。
// 多个并发调用方共享同一实例，状态变更由互斥锁串行化。
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	config          CircuitBreakerConfig

	// now 可替换的时钟，便于测试
	now func() time.Time
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}

	return &CircuitBreaker{
		state:  CircuitClosed,
		config: config,
		now:    time.Now,
	}
}

// Call 执行受保护的操作
// OPEN且冷却未到期：返回ErrCircuitOpen，操作不会被调用。
// OPEN且冷却到期：转为HALF_OPEN并放行一次尝试。
// 成功（CLOSED或HALF_OPEN）：failureCount归零，状态回到CLOSED。
// 失败：计数并记录时间；达到阈值或HALF_OPEN下失败则熔断。
// 原始错误原样返回，上游的错误语义不受影响。
func (cb *CircuitBreaker) Call(operation func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	// 不持锁执行操作：broker IO可能阻塞，锁只保护状态变更
	err := operation()

	cb.afterCall(err)
	return err
}

// beforeCall 放行检查
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}

	// 首次调用永远放行：lastFailureTime为零值时不可能进入OPEN
	if cb.now().Sub(cb.lastFailureTime) < cb.config.RecoveryTimeout {
		return ErrCircuitOpen
	}

	// 冷却到期，试探性放行
	cb.state = CircuitHalfOpen
	logger.Info("Circuit breaker transitioned to half-open",
		"name", cb.config.Name)
	return nil
}

// afterCall 根据操作结果更新状态
func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || (cb.config.FailurePredicate != nil && !cb.config.FailurePredicate(err)) {
		// 成功（或不计入失败的错误）：任何状态下都复位
		if err == nil {
			if cb.state != CircuitClosed {
				logger.Info("Circuit breaker recovered",
					"name", cb.config.Name,
					"previousState", cb.state.String())
			}
			cb.failureCount = 0
			cb.state = CircuitClosed
		}
		return
	}

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	if cb.state == CircuitHalfOpen {
		// 半开状态下的失败立刻重新熔断
		cb.state = CircuitOpen
		logger.Warn("Circuit breaker re-opened after half-open failure",
			"name", cb.config.Name,
			"error", err)
		return
	}

	if cb.failureCount >= cb.config.FailureThreshold {
		cb.state = CircuitOpen
		logger.Warn("Circuit breaker opened",
			"name", cb.config.Name,
			"failureCount", cb.failureCount,
			"threshold", cb.config.FailureThreshold,
			"error", err)
	}
}

// State 当前状态
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount 当前连续失败计数
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset 强制复位到CLOSED（测试/运维用）
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}
