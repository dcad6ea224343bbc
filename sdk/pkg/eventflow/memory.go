package eventflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

// memoryBroker 内存消息代理（用于测试和开发）
// 订阅回调在独立goroutine中异步执行，不阻塞发布者
type memoryBroker struct {
	mu          sync.RWMutex
	subscribers map[string]MessageHandler
	closed      bool

	callbackMu         sync.Mutex
	reconnectCallbacks []func(ctx context.Context) error
}

// NewMemoryBroker 创建内存消息代理
func NewMemoryBroker() Broker {
	return &memoryBroker{
		subscribers: make(map[string]MessageHandler),
	}
}

// Publish 发布消息
func (m *memoryBroker) Publish(ctx context.Context, channel string, message []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return NewBrokerError("publish", ErrBrokerClosed)
	}

	handler, exists := m.subscribers[channel]
	if !exists {
		logger.Debug("No subscribers for channel", "channel", channel)
		return nil
	}

	// 异步处理消息，避免阻塞发布者
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Message handler panicked", "channel", channel, "panic", r)
			}
		}()

		if err := handler(ctx, message); err != nil {
			logger.Error("Message handler failed", "channel", channel, "error", err)
		}
	}()

	return nil
}

// Subscribe 订阅通道
func (m *memoryBroker) Subscribe(ctx context.Context, channel string, handler MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewBrokerError("subscribe", ErrBrokerClosed)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if _, exists := m.subscribers[channel]; exists {
		return fmt.Errorf("already subscribed to channel: %s", channel)
	}

	m.subscribers[channel] = handler
	return nil
}

// Unsubscribe 取消订阅
func (m *memoryBroker) Unsubscribe(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, channel)
	return nil
}

// HealthCheck 健康检查
func (m *memoryBroker) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrBrokerClosed
	}
	return nil
}

// RegisterReconnectCallback 注册重连回调（内存实现不会断连，仅保存）
func (m *memoryBroker) RegisterReconnectCallback(callback func(ctx context.Context) error) error {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.reconnectCallbacks = append(m.reconnectCallbacks, callback)
	return nil
}

// Close 关闭
func (m *memoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subscribers = make(map[string]MessageHandler)
	return nil
}
