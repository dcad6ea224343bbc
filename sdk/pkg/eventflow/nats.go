package eventflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"github.com/nats-io/nats.go"
)

// natsBroker NATS消息代理（Core NATS，非持久化）
type natsBroker struct {
	conn   *nats.Conn
	config *NATSConfig

	mu            sync.Mutex
	subscriptions map[string]*nats.Subscription
	closed        bool

	callbackMu         sync.Mutex
	reconnectCallbacks []func(ctx context.Context) error
}

// NewNATSBroker 创建NATS消息代理
func NewNATSBroker(config *NATSConfig) (Broker, error) {
	if config == nil {
		return nil, fmt.Errorf("nats config cannot be nil")
	}
	if len(config.URLs) == 0 {
		return nil, fmt.Errorf("nats URLs cannot be empty")
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = DefaultMaxReconnectAttempts
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = DefaultReconnectWait
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = DefaultConnectionTimeout
	}

	b := &natsBroker{
		config:        config,
		subscriptions: make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.Timeout(config.ConnectionTimeout),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			b.fireReconnectCallbacks()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
	}

	nc, err := nats.Connect(config.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.conn = nc

	logger.Info("NATS broker created", "url", nc.ConnectedUrl())
	return b, nil
}

// Publish 发布消息
func (n *natsBroker) Publish(ctx context.Context, channel string, message []byte) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return NewBrokerError("publish", ErrBrokerClosed)
	}

	if err := n.conn.Publish(channel, message); err != nil {
		return NewBrokerError("publish", err)
	}
	return nil
}

// Subscribe 订阅通道
func (n *natsBroker) Subscribe(ctx context.Context, channel string, handler MessageHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return NewBrokerError("subscribe", ErrBrokerClosed)
	}
	if _, exists := n.subscriptions[channel]; exists {
		return fmt.Errorf("already subscribed to channel: %s", channel)
	}

	sub, err := n.conn.Subscribe(channel, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			logger.Error("NATS message handler failed", "channel", channel, "error", err)
		}
	})
	if err != nil {
		return NewBrokerError("subscribe", err)
	}

	n.subscriptions[channel] = sub
	logger.Info("Subscribed to NATS channel", "channel", channel)
	return nil
}

// Unsubscribe 取消订阅
func (n *natsBroker) Unsubscribe(channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, exists := n.subscriptions[channel]
	if !exists {
		return nil
	}

	if err := sub.Unsubscribe(); err != nil {
		return NewBrokerError("unsubscribe", err)
	}
	delete(n.subscriptions, channel)

	logger.Info("Unsubscribed from NATS channel", "channel", channel)
	return nil
}

// HealthCheck 健康检查
func (n *natsBroker) HealthCheck(ctx context.Context) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return ErrBrokerClosed
	}

	if n.conn.Status() != nats.CONNECTED {
		return NewBrokerError("health_check", fmt.Errorf("nats connection status: %s", n.conn.Status()))
	}

	// 往返探测，确认服务器可达
	if err := n.conn.FlushTimeout(5 * time.Second); err != nil {
		return NewBrokerError("health_check", err)
	}
	return nil
}

// RegisterReconnectCallback 注册重连回调
func (n *natsBroker) RegisterReconnectCallback(callback func(ctx context.Context) error) error {
	n.callbackMu.Lock()
	defer n.callbackMu.Unlock()
	n.reconnectCallbacks = append(n.reconnectCallbacks, callback)
	return nil
}

func (n *natsBroker) fireReconnectCallbacks() {
	n.callbackMu.Lock()
	callbacks := append([]func(ctx context.Context) error(nil), n.reconnectCallbacks...)
	n.callbackMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, cb := range callbacks {
		if err := cb(ctx); err != nil {
			logger.Error("Reconnect callback failed", "error", err)
		}
	}
}

// Close 关闭连接
func (n *natsBroker) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	for channel, sub := range n.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("Failed to unsubscribe during close", "channel", channel, "error", err)
		}
	}
	n.subscriptions = make(map[string]*nats.Subscription)

	n.conn.Close()
	return nil
}
