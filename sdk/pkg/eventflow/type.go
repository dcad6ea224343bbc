package eventflow

import (
	"context"
	"time"
)

// MessageHandler 原始消息处理器函数类型（broker层）
type MessageHandler func(ctx context.Context, message []byte) error

// EventHandler 业务事件处理器（订阅层）
// 返回error表示处理失败；是否影响整体结果取决于该处理器是否为关键处理器
type EventHandler interface {
	Handle(ctx context.Context, envelope *Envelope) error
}

// EventHandlerFunc 函数适配器
type EventHandlerFunc func(ctx context.Context, envelope *Envelope) error

func (f EventHandlerFunc) Handle(ctx context.Context, envelope *Envelope) error {
	return f(ctx, envelope)
}

// Broker 消息代理接口（基础设施层）
// 实现类型：memory, redis, nats, kafka
type Broker interface {
	// 发布消息到指定通道
	Publish(ctx context.Context, channel string, message []byte) error

	// 订阅指定通道的消息
	Subscribe(ctx context.Context, channel string, handler MessageHandler) error

	// 取消订阅指定通道
	Unsubscribe(channel string) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 注册重连回调
	RegisterReconnectCallback(callback func(ctx context.Context) error) error

	// 关闭连接
	Close() error
}

// BrokerConfig 消息代理配置
type BrokerConfig struct {
	Type  string      // memory, redis, nats, kafka
	Redis RedisConfig // Redis Pub/Sub配置
	NATS  NATSConfig  // NATS配置
	Kafka KafkaConfig // Kafka配置
}

// RedisConfig Redis Pub/Sub配置
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// NATSConfig NATS配置
type NATSConfig struct {
	URLs              []string
	ClientID          string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers  []string
	Producer KafkaProducerConfig
	Consumer KafkaConsumerConfig
}

// KafkaProducerConfig Kafka生产者配置
type KafkaProducerConfig struct {
	RequiredAcks   int
	Compression    string
	FlushFrequency time.Duration
	Timeout        time.Duration
}

// KafkaConsumerConfig Kafka消费者配置
type KafkaConsumerConfig struct {
	GroupID           string
	AutoOffsetReset   string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// HealthStatus 健康状态
// 适合直接序列化后作为HTTP健康检查端点的响应体
type HealthStatus struct {
	Component string                 `json:"component"`
	Status    string                 `json:"status"` // healthy, degraded, warning, unhealthy
	LastCheck time.Time              `json:"lastCheck"`
	Errors    []string               `json:"errors,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// 健康状态常量
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusWarning   = "warning"
	StatusUnhealthy = "unhealthy"
)

// EventTypeStats 单一事件类型的发布统计（短TTL，仅用于监控）
type EventTypeStats struct {
	Published     int64         `json:"published"`
	Failed        int64         `json:"failed"`
	LastPublished time.Time     `json:"lastPublished"`
	AvgLatency    time.Duration `json:"avgLatency"`
}
