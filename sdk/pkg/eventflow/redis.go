package eventflow

import (
	"context"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"github.com/go-redis/redis/v9"
)

// redisBroker Redis Pub/Sub消息代理
// 所有订阅通道复用同一个PubSub连接（多路复用），按消息的通道名路由到处理器
type redisBroker struct {
	client *redis.Client
	config *RedisConfig

	mu       sync.Mutex
	pubsub   *redis.PubSub
	handlers map[string]MessageHandler
	closed   bool

	// 接收循环控制
	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	callbackMu         sync.Mutex
	reconnectCallbacks []func(ctx context.Context) error
}

// NewRedisBroker 创建Redis消息代理
func NewRedisBroker(config *RedisConfig) (Broker, error) {
	if config == nil {
		config = &RedisConfig{}
	}
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultConnectionTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// 连接失败不致命：Redis恢复后发布会自动成功，降级缓冲兜底
		logger.Warn("Redis not reachable at startup", "addr", config.Addr, "error", err)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())

	b := &redisBroker{
		client:     client,
		config:     config,
		handlers:   make(map[string]MessageHandler),
		loopCtx:    loopCtx,
		loopCancel: loopCancel,
		loopDone:   make(chan struct{}),
	}

	logger.Info("Redis broker created", "addr", config.Addr, "db", config.DB)
	return b, nil
}

// Publish 发布消息到通道
func (r *redisBroker) Publish(ctx context.Context, channel string, message []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return NewBrokerError("publish", ErrBrokerClosed)
	}

	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		return NewBrokerError("publish", err)
	}
	return nil
}

// Subscribe 订阅通道
// 第一个订阅建立PubSub连接并启动接收循环，后续订阅在同一连接上追加通道
func (r *redisBroker) Subscribe(ctx context.Context, channel string, handler MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return NewBrokerError("subscribe", ErrBrokerClosed)
	}

	if r.pubsub == nil {
		r.pubsub = r.client.Subscribe(ctx, channel)
		go r.receiveLoop(r.pubsub)
	} else {
		if err := r.pubsub.Subscribe(ctx, channel); err != nil {
			return NewBrokerError("subscribe", err)
		}
	}

	r.handlers[channel] = handler
	logger.Info("Subscribed to redis channel", "channel", channel)
	return nil
}

// receiveLoop 统一接收循环：按通道名路由到处理器
func (r *redisBroker) receiveLoop(pubsub *redis.PubSub) {
	defer close(r.loopDone)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			r.mu.Lock()
			handler := r.handlers[msg.Channel]
			r.mu.Unlock()

			if handler == nil {
				continue
			}

			if err := handler(r.loopCtx, []byte(msg.Payload)); err != nil {
				logger.Error("Redis message handler failed",
					"channel", msg.Channel,
					"error", err)
			}

		case <-r.loopCtx.Done():
			return
		}
	}
}

// Unsubscribe 取消订阅通道
func (r *redisBroker) Unsubscribe(channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, channel)

	if r.pubsub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.DialTimeout)
		defer cancel()
		if err := r.pubsub.Unsubscribe(ctx, channel); err != nil {
			return NewBrokerError("unsubscribe", err)
		}
	}

	logger.Info("Unsubscribed from redis channel", "channel", channel)
	return nil
}

// HealthCheck 健康检查（PING）
func (r *redisBroker) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return ErrBrokerClosed
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewBrokerError("health_check", err)
	}
	return nil
}

// RegisterReconnectCallback 注册重连回调
// go-redis自动重连，这里通过健康探测循环在恢复后触发回调
func (r *redisBroker) RegisterReconnectCallback(callback func(ctx context.Context) error) error {
	r.callbackMu.Lock()
	defer r.callbackMu.Unlock()

	if len(r.reconnectCallbacks) == 0 {
		go r.watchConnection()
	}
	r.reconnectCallbacks = append(r.reconnectCallbacks, callback)
	return nil
}

// watchConnection 周期性探测连接，从断连恢复后触发重连回调
func (r *redisBroker) watchConnection() {
	ticker := time.NewTicker(DefaultReconnectWait)
	defer ticker.Stop()

	wasDown := false
	for {
		select {
		case <-r.loopCtx.Done():
			return
		case <-ticker.C:
			err := r.client.Ping(r.loopCtx).Err()
			if err != nil {
				wasDown = true
				continue
			}
			if !wasDown {
				continue
			}
			wasDown = false

			logger.Info("Redis connection recovered, invoking reconnect callbacks")
			r.callbackMu.Lock()
			callbacks := append([]func(ctx context.Context) error(nil), r.reconnectCallbacks...)
			r.callbackMu.Unlock()

			for _, cb := range callbacks {
				if err := cb(r.loopCtx); err != nil {
					logger.Error("Reconnect callback failed", "error", err)
				}
			}
		}
	}
}

// Close 关闭连接
func (r *redisBroker) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pubsub := r.pubsub
	r.mu.Unlock()

	r.loopCancel()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			logger.Warn("Failed to close redis pubsub", "error", err)
		}
		<-r.loopDone
	}

	return r.client.Close()
}
