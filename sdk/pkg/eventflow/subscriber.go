package eventflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// EventProcessingResult 单次包络分发的处理结果
type EventProcessingResult struct {
	EventID        string          `json:"eventId"`
	EventType      string          `json:"eventType"`
	Success        bool            `json:"success"`
	HandlerResults map[string]bool `json:"handlerResults"` // 处理器名 -> 是否成功
	Errors         []string        `json:"errors,omitempty"`
	ProcessingTime time.Duration   `json:"processingTime"`
}

// SubscriberOptions 订阅器选项
type SubscriberOptions struct {
	MaxConcurrency int           // 并发分发上限
	ProcessTimeout time.Duration // 单次分发超时（通过ctx传递给处理器，不强制取消）

	Metrics MetricsCollector

	// ResultCallback 每次分发完成后的回调（监控/测试用），可为nil
	ResultCallback func(result *EventProcessingResult)
}

// EventSubscriber 事件订阅器
// 把事件类型映射到确定性通道（events:<type>），复用一个多路复用的broker连接。
// 分发顺序由注册表决定：优先级降序，同优先级按注册顺序。
// 关键处理器失败会把整体结果标记为失败，但其余处理器仍然执行（尽力而为的延续）。
type EventSubscriber struct {
	broker   Broker
	registry *EventTypeRegistry
	opts     SubscriberOptions

	// 分发在worker goroutine中执行，慢处理器不会阻塞接收循环
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu         sync.Mutex
	localNames map[string][]string // eventType -> 本订阅器添加的处理器名
	channels   map[string]bool     // 已在broker上订阅的通道

	baseCtx context.Context
	cancel  context.CancelFunc
	closed  bool
}

// NewEventSubscriber 创建事件订阅器
func NewEventSubscriber(broker Broker, registry *EventTypeRegistry, opts SubscriberOptions) *EventSubscriber {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = DefaultProcessTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EventSubscriber{
		broker:     broker,
		registry:   registry,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		localNames: make(map[string][]string),
		channels:   make(map[string]bool),
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Subscribe 订阅一个事件类型
// 传入的处理器注册到注册表（重复的处理器名返回错误），
// 并确保events:<type>通道的broker订阅已建立。
// 处理器必须在接收循环启动前注册完毕，分发周期内只读。
func (s *EventSubscriber) Subscribe(ctx context.Context, eventType string, registrations ...HandlerRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber is closed")
	}

	for _, reg := range registrations {
		if err := s.registry.AddHandler(eventType, reg); err != nil {
			return err
		}
		s.localNames[eventType] = append(s.localNames[eventType], reg.Name)
	}

	channel := ChannelForEventType(eventType)
	if s.channels[channel] {
		return nil
	}

	if err := s.broker.Subscribe(ctx, channel, s.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}
	s.channels[channel] = true

	logger.Info("Subscribed to event type",
		"eventType", eventType,
		"channel", channel,
		"handlers", len(registrations))
	return nil
}

// Unsubscribe 取消一个事件类型的订阅
// 移除本订阅器注册的处理器；没有本地处理器残留时同时移除broker订阅
func (s *EventSubscriber) Unsubscribe(eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.localNames[eventType] {
		s.registry.RemoveHandler(eventType, name)
	}
	delete(s.localNames, eventType)

	channel := ChannelForEventType(eventType)
	if !s.channels[channel] {
		return nil
	}

	if err := s.broker.Unsubscribe(channel); err != nil {
		return fmt.Errorf("failed to unsubscribe from channel %s: %w", channel, err)
	}
	delete(s.channels, channel)

	logger.Info("Unsubscribed from event type", "eventType", eventType, "channel", channel)
	return nil
}

// handleMessage 接收循环回调：解码包络并移交给worker分发
// 同步处理器绝不在接收循环所在的goroutine里执行
func (s *EventSubscriber) handleMessage(ctx context.Context, message []byte) error {
	envelope, err := FromBytes(message)
	if err != nil {
		logger.Error("Failed to decode event envelope, message dropped", "error", err)
		return err
	}

	if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
		// 订阅器正在关闭
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.dispatch(envelope)
	}()

	return nil
}

// dispatch 按注册表顺序执行一个包络的所有处理器
func (s *EventSubscriber) dispatch(envelope *Envelope) *EventProcessingResult {
	start := time.Now()

	result := &EventProcessingResult{
		EventID:        envelope.EventID,
		EventType:      envelope.EventType,
		Success:        true,
		HandlerResults: make(map[string]bool),
	}

	handlers := s.registry.GetHandlersForEvent(envelope.EventType)
	if len(handlers) == 0 {
		// 未知事件类型不算错误：生产者可以比消费者更新
		logger.Debug("No handlers registered for event type", "eventType", envelope.EventType)
		result.ProcessingTime = time.Since(start)
		s.finish(result)
		return result
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.ProcessTimeout)
	defer cancel()

	var resultMu sync.Mutex
	var asyncWg sync.WaitGroup

	record := func(reg HandlerRegistration, err error, elapsed time.Duration) {
		resultMu.Lock()
		defer resultMu.Unlock()

		result.HandlerResults[reg.Name] = err == nil
		if err != nil {
			result.Errors = append(result.Errors, (&HandlerError{
				HandlerName: reg.Name,
				EventType:   envelope.EventType,
				Err:         err,
			}).Error())
			if reg.IsCritical {
				result.Success = false
			}
			logger.Warn("Event handler failed",
				"eventType", envelope.EventType,
				"handler", reg.Name,
				"critical", reg.IsCritical,
				"error", err)
		}
		s.opts.Metrics.RecordHandlerResult(envelope.EventType, reg.Name, err == nil, elapsed)
	}

	for _, reg := range handlers {
		if reg.IsAsync {
			asyncWg.Add(1)
			go func(reg HandlerRegistration) {
				defer asyncWg.Done()
				hStart := time.Now()
				err := s.runHandler(ctx, reg, envelope)
				record(reg, err, time.Since(hStart))
			}(reg)
			continue
		}

		hStart := time.Now()
		err := s.runHandler(ctx, reg, envelope)
		record(reg, err, time.Since(hStart))
	}

	asyncWg.Wait()

	result.ProcessingTime = time.Since(start)
	s.finish(result)
	return result
}

// runHandler 执行单个处理器，panic按失败处理
func (s *EventSubscriber) runHandler(ctx context.Context, reg HandlerRegistration, envelope *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return reg.Handler.Handle(ctx, envelope)
}

func (s *EventSubscriber) finish(result *EventProcessingResult) {
	s.opts.Metrics.RecordDispatch(result.EventType, result.Success, result.ProcessingTime)

	if !result.Success {
		logger.Warn("Event processing failed",
			"eventId", result.EventID,
			"eventType", result.EventType,
			"errors", result.Errors)
	}

	if s.opts.ResultCallback != nil {
		s.opts.ResultCallback(result)
	}
}

// HealthCheck 订阅器健康检查
func (s *EventSubscriber) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()

	s.mu.Lock()
	channelCount := len(s.channels)
	closed := s.closed
	s.mu.Unlock()

	status := &HealthStatus{
		Component: "event_subscriber",
		Status:    StatusHealthy,
		LastCheck: start.UTC(),
		Details: map[string]interface{}{
			"subscribedChannels": channelCount,
		},
	}

	if closed {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, "subscriber is closed")
		return status
	}

	if err := s.broker.HealthCheck(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, fmt.Sprintf("broker: %v", err))
	}

	s.opts.Metrics.RecordHealthCheck(status.Component, status.Status == StatusHealthy, time.Since(start))
	return status
}

// Close 关闭订阅器：移除所有broker订阅并等待执行中的分发完成
func (s *EventSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for channel := range s.channels {
		if err := s.broker.Unsubscribe(channel); err != nil {
			logger.Warn("Failed to unsubscribe during close", "channel", channel, "error", err)
		}
	}
	s.channels = make(map[string]bool)
	s.mu.Unlock()

	// 等待执行中的分发完成后再取消基础上下文
	s.wg.Wait()
	s.cancel()

	logger.Info("Event subscriber closed")
	return nil
}
