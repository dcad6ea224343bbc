package eventflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// TenantContextFunc 从调用上下文提取环境租户/操作者信息
// 发布时仅在包络未显式设置时填充
type TenantContextFunc func(ctx context.Context) (firmID, userID *int64)

// PublisherOptions 发布器选项
type PublisherOptions struct {
	DefaultChannel string // 默认发布通道（默认workflow_events）
	SourceSystem   string // 填充到包络的来源系统标识

	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	Fallback       FallbackStoreConfig
	RateLimit      RateLimitConfig

	// 降级缓冲深度的健康阈值，超过后健康状态降级（对运维的显式背压信号）
	WarningDepth  int
	CriticalDepth int

	StatsTTL time.Duration // 发布统计保留时间

	Metrics       MetricsCollector
	TenantContext TenantContextFunc
}

// EventPublisher 事件发布器
// 组合熔断器+重试执行器+降级缓冲，把包络推送到broker通道。
// Publish对生产者永不失败抛出：任何故障都被吸收为false返回值与缓冲重发。
type EventPublisher struct {
	broker   Broker
	breaker  *CircuitBreaker
	retrier  *RetryExecutor
	fallback *FallbackStore
	limiter  *RateLimiter
	metrics  MetricsCollector
	opts     PublisherOptions

	// 按事件类型的短TTL发布统计
	statsMu sync.Mutex
	stats   map[string]*typeStats
}

type typeStats struct {
	published    int64
	failed       int64
	last         time.Time
	totalLatency time.Duration
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(broker Broker, opts PublisherOptions) *EventPublisher {
	if opts.DefaultChannel == "" {
		opts.DefaultChannel = DefaultChannel
	}
	if opts.SourceSystem == "" {
		opts.SourceSystem = DefaultSourceSystem
	}
	if opts.WarningDepth <= 0 {
		opts.WarningDepth = DefaultFallbackWarningThreshold
	}
	if opts.CriticalDepth <= 0 {
		opts.CriticalDepth = DefaultFallbackCriticalThreshold
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = DefaultStatsTTL
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}
	if opts.CircuitBreaker.Name == "" {
		opts.CircuitBreaker.Name = "event_publisher"
	}
	if opts.CircuitBreaker.FailurePredicate == nil {
		// 只有broker故障计入熔断：编程错误（序列化等）不应触发熔断
		opts.CircuitBreaker.FailurePredicate = IsBrokerError
	}

	p := &EventPublisher{
		broker:   broker,
		breaker:  NewCircuitBreaker(opts.CircuitBreaker),
		retrier:  NewRetryExecutor(opts.Retry),
		fallback: NewFallbackStore(opts.Fallback),
		limiter:  NewRateLimiter(opts.RateLimit),
		metrics:  opts.Metrics,
		opts:     opts,
		stats:    make(map[string]*typeStats),
	}

	// broker重连后立即尝试排空降级缓冲
	_ = broker.RegisterReconnectCallback(func(ctx context.Context) error {
		drained := p.RetryFallbackEvents(ctx)
		if drained > 0 {
			logger.Info("Drained fallback buffer after broker reconnect", "drained", drained)
		}
		return nil
	})

	return p
}

// Publish 发布包络，返回是否成功交付到broker
// 失败（broker不可达、熔断打开）时事件进入降级缓冲等待周期性重发。
// 序列化错误直接返回false且不入缓冲：重试无法修复这类错误。
// 该方法永不panic、永不返回error——生产者完全不感知基础设施故障。
func (p *EventPublisher) Publish(ctx context.Context, envelope *Envelope, channel ...string) bool {
	if envelope == nil {
		logger.Error("Publish called with nil envelope")
		return false
	}

	target := p.opts.DefaultChannel
	if len(channel) > 0 && channel[0] != "" {
		target = channel[0]
	}

	p.fillAmbientContext(ctx, envelope)

	start := time.Now()

	data, err := envelope.ToBytes()
	if err != nil {
		logger.Error("Event serialization failed, dropping event",
			"eventId", envelope.EventID,
			"eventType", envelope.EventType,
			"error", err)
		p.recordResult(envelope.EventType, false, time.Since(start))
		return false
	}

	if err := p.limiter.Wait(ctx); err != nil {
		p.storeFallback(envelope, target)
		p.recordResult(envelope.EventType, false, time.Since(start))
		return false
	}

	err = p.retrier.Execute(ctx, func() error {
		return p.breaker.Call(func() error {
			return p.broker.Publish(ctx, target, data)
		})
	})
	p.metrics.RecordCircuitState(p.opts.CircuitBreaker.Name, p.breaker.State())

	if err != nil {
		logger.Warn("Event publish failed, storing in fallback buffer",
			"eventId", envelope.EventID,
			"eventType", envelope.EventType,
			"channel", target,
			"error", err)
		p.storeFallback(envelope, target)
		p.recordResult(envelope.EventType, false, time.Since(start))
		return false
	}

	p.recordResult(envelope.EventType, true, time.Since(start))
	logger.Debug("Event published",
		"eventId", envelope.EventID,
		"eventType", envelope.EventType,
		"channel", target)
	return true
}

// PublishMultiple 批量发布，每个事件的成败相互独立
// 返回与输入等长的结果切片
func (p *EventPublisher) PublishMultiple(ctx context.Context, envelopes []*Envelope, channel ...string) []bool {
	results := make([]bool, len(envelopes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, env := range envelopes {
		g.Go(func() error {
			results[i] = p.Publish(gctx, env, channel...)
			return nil
		})
	}

	// Publish永不返回error，Wait只用于同步
	_ = g.Wait()
	return results
}

// RetryFallbackEvents 对降级缓冲中的所有条目执行一轮重发
// 成功的移除；失败的计数后重新排队；超过最大重试次数的永久丢弃。
// 返回本轮成功重发的条数。
func (p *EventPublisher) RetryFallbackEvents(ctx context.Context) int {
	before := p.fallback.Stats()

	drained := p.fallback.Retry(ctx, func(ctx context.Context, entry *FallbackEntry) error {
		data, err := entry.Envelope.ToBytes()
		if err != nil {
			return err
		}
		return p.breaker.Call(func() error {
			return p.broker.Publish(ctx, entry.Channel, data)
		})
	})

	after := p.fallback.Stats()
	p.metrics.RecordFallbackDepth(after.QueueDepth)
	if dropped := after.Exhausted - before.Exhausted; dropped > 0 {
		for i := int64(0); i < dropped; i++ {
			p.metrics.RecordFallbackDrop("retries_exhausted")
		}
	}

	return drained
}

// FallbackStats 降级缓冲统计
func (p *EventPublisher) FallbackStats() FallbackStats {
	return p.fallback.Stats()
}

// CircuitState 发布熔断器当前状态
func (p *EventPublisher) CircuitState() CircuitState {
	return p.breaker.State()
}

// Close 关闭发布器：退出前对降级缓冲做最后一轮重发
// 缓冲为内存态，仍未排空的条目随进程丢失，数量记入日志便于事后核对
func (p *EventPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	drained := p.RetryFallbackEvents(ctx)
	if remaining := p.fallback.Len(); remaining > 0 {
		logger.Warn("Publisher closed with undelivered events in fallback buffer",
			"drained", drained,
			"remaining", remaining)
	}
	return nil
}

// HealthCheck 发布器健康检查
// 返回broker/熔断器状态与缓冲深度；深度超过警告/严重阈值时健康状态降级
func (p *EventPublisher) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()

	status := &HealthStatus{
		Component: "event_publisher",
		Status:    StatusHealthy,
		LastCheck: start.UTC(),
		Details:   make(map[string]interface{}),
	}

	brokerErr := p.broker.HealthCheck(ctx)
	circuitState := p.breaker.State()
	stats := p.fallback.Stats()

	status.Details["broker"] = map[string]interface{}{
		"reachable": brokerErr == nil,
	}
	status.Details["circuitBreaker"] = map[string]interface{}{
		"state":        circuitState.String(),
		"failureCount": p.breaker.FailureCount(),
	}
	status.Details["fallback"] = map[string]interface{}{
		"queueDepth":        stats.QueueDepth,
		"maxStorage":        stats.MaxStorage,
		"warningThreshold":  p.opts.WarningDepth,
		"criticalThreshold": p.opts.CriticalDepth,
		"evicted":           stats.Evicted,
		"exhausted":         stats.Exhausted,
	}

	switch {
	case brokerErr != nil:
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, fmt.Sprintf("broker: %v", brokerErr))
	case circuitState == CircuitOpen:
		status.Status = StatusDegraded
		status.Errors = append(status.Errors, "circuit breaker is open")
	case stats.QueueDepth >= p.opts.CriticalDepth:
		status.Status = StatusDegraded
		status.Errors = append(status.Errors, fmt.Sprintf("fallback queue depth %d exceeds critical threshold %d", stats.QueueDepth, p.opts.CriticalDepth))
	case stats.QueueDepth >= p.opts.WarningDepth:
		status.Status = StatusWarning
		status.Errors = append(status.Errors, fmt.Sprintf("fallback queue depth %d exceeds warning threshold %d", stats.QueueDepth, p.opts.WarningDepth))
	}

	p.metrics.RecordHealthCheck(status.Component, status.Status == StatusHealthy, time.Since(start))
	return status
}

// GetEventStats 按事件类型的发布统计快照（过期条目在读取时清理）
// 仅用于自省，不在热路径上调用
func (p *EventPublisher) GetEventStats() map[string]EventTypeStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	now := time.Now()
	out := make(map[string]EventTypeStats, len(p.stats))
	for eventType, s := range p.stats {
		if now.Sub(s.last) > p.opts.StatsTTL {
			delete(p.stats, eventType)
			continue
		}
		stat := EventTypeStats{
			Published:     s.published,
			Failed:        s.failed,
			LastPublished: s.last,
		}
		if s.published > 0 {
			stat.AvgLatency = s.totalLatency / time.Duration(s.published)
		}
		out[eventType] = stat
	}
	return out
}

// fillAmbientContext 填充环境租户/操作者上下文（仅在未显式设置时）
func (p *EventPublisher) fillAmbientContext(ctx context.Context, envelope *Envelope) {
	if envelope.SourceSystem == "" {
		envelope.SourceSystem = p.opts.SourceSystem
	}
	if p.opts.TenantContext == nil {
		return
	}
	firmID, userID := p.opts.TenantContext(ctx)
	if envelope.FirmID == nil {
		envelope.FirmID = firmID
	}
	if envelope.UserID == nil {
		envelope.UserID = userID
	}
}

func (p *EventPublisher) storeFallback(envelope *Envelope, channel string) {
	p.fallback.Add(envelope, channel)
	stats := p.fallback.Stats()
	p.metrics.RecordFallbackDepth(stats.QueueDepth)
}

func (p *EventPublisher) recordResult(eventType string, success bool, latency time.Duration) {
	p.metrics.RecordPublish(eventType, success, latency)

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	s, ok := p.stats[eventType]
	if !ok {
		s = &typeStats{}
		p.stats[eventType] = s
	}
	if success {
		s.published++
		s.totalLatency += latency
	} else {
		s.failed++
	}
	s.last = time.Now()
}
