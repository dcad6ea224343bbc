package config

import (
	"fmt"
	"time"
)

// ==========================================================================
// 核心配置结构 - 统一的EventFlow配置入口
// ==========================================================================

// EventFlow 事件流配置
type EventFlow struct {
	// 基础配置
	Type        string `mapstructure:"type"`        // memory, redis, nats, kafka
	ServiceName string `mapstructure:"serviceName"` // 微服务名称（作为事件的source_system）

	// 发布端配置
	Publisher EventPublisherConfig `mapstructure:"publisher"`

	// 订阅端配置
	Subscriber EventSubscriberConfig `mapstructure:"subscriber"`

	// 具体实现配置
	Redis EventRedisConfig `mapstructure:"redis"` // Redis Pub/Sub配置
	NATS  EventNATSConfig  `mapstructure:"nats"`  // NATS配置
	Kafka EventKafkaConfig `mapstructure:"kafka"` // Kafka配置
}

// EventPublisherConfig 发布端配置
type EventPublisherConfig struct {
	DefaultChannel string `mapstructure:"defaultChannel"` // 默认发布通道（默认workflow_events）

	// 熔断配置
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`

	// 重试配置
	Retry RetryConfig `mapstructure:"retry"`

	// 降级缓冲配置
	Fallback FallbackConfig `mapstructure:"fallback"`

	// 流量控制
	RateLimit EventRateLimitConfig `mapstructure:"rateLimit"`
}

// EventSubscriberConfig 订阅端配置
type EventSubscriberConfig struct {
	MaxConcurrency int           `mapstructure:"maxConcurrency"` // 最大并发分发数（默认10）
	ProcessTimeout time.Duration `mapstructure:"processTimeout"` // 单次分发超时（默认30秒）
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failureThreshold"` // 连续失败阈值（默认5次）
	RecoveryTimeout  time.Duration `mapstructure:"recoveryTimeout"`  // 熔断恢复等待时间（默认60秒）
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`     // 最大尝试次数（默认3次）
	BaseDelay       time.Duration `mapstructure:"baseDelay"`       // 初始退避时间（默认100毫秒）
	MaxDelay        time.Duration `mapstructure:"maxDelay"`        // 最大退避时间（默认10秒）
	ExponentialBase float64       `mapstructure:"exponentialBase"` // 退避因子（默认2.0）
	Jitter          bool          `mapstructure:"jitter"`          // 是否启用抖动（50%-100%）
}

// FallbackConfig 降级缓冲（死信队列）配置
type FallbackConfig struct {
	MaxStorage        int    `mapstructure:"maxStorage"`        // 缓冲区容量（默认1000条，FIFO淘汰）
	MaxRetries        int    `mapstructure:"maxRetries"`        // 单条消息最大重试次数（默认5次）
	WarningThreshold  int    `mapstructure:"warningThreshold"`  // 队列深度警告阈值（默认100）
	CriticalThreshold int    `mapstructure:"criticalThreshold"` // 队列深度严重阈值（默认500）
	DrainSchedule     string `mapstructure:"drainSchedule"`     // 周期重发调度表达式（默认@every 30s）
}

// EventRateLimitConfig 流量控制配置
type EventRateLimitConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	RatePerSecond float64 `mapstructure:"ratePerSecond"`
	BurstSize     int     `mapstructure:"burstSize"`
}

// ==========================================================================
// 具体实现配置
// ==========================================================================

// EventRedisConfig Redis Pub/Sub配置
type EventRedisConfig struct {
	Addr         string        `mapstructure:"addr"`         // Redis地址
	Password     string        `mapstructure:"password"`     // 密码
	DB           int           `mapstructure:"db"`           // 数据库编号
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`  // 连接超时
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`  // 读超时
	WriteTimeout time.Duration `mapstructure:"writeTimeout"` // 写超时
	PoolSize     int           `mapstructure:"poolSize"`     // 连接池大小
}

// EventNATSConfig NATS配置
type EventNATSConfig struct {
	URLs              []string      `mapstructure:"urls"`              // NATS服务器地址
	ClientID          string        `mapstructure:"clientId"`          // 客户端ID
	MaxReconnects     int           `mapstructure:"maxReconnects"`     // 最大重连次数
	ReconnectWait     time.Duration `mapstructure:"reconnectWait"`     // 重连等待时间
	ConnectionTimeout time.Duration `mapstructure:"connectionTimeout"` // 连接超时
}

// EventKafkaConfig Kafka配置
type EventKafkaConfig struct {
	Brokers []string `mapstructure:"brokers"` // Kafka集群地址

	Producer EventKafkaProducerConfig `mapstructure:"producer"` // 生产者配置
	Consumer EventKafkaConsumerConfig `mapstructure:"consumer"` // 消费者配置
}

// EventKafkaProducerConfig Kafka生产者配置
type EventKafkaProducerConfig struct {
	RequiredAcks   int           `mapstructure:"requiredAcks"`   // 消息确认级别 (0=不确认, 1=leader确认, -1=所有副本确认)
	Compression    string        `mapstructure:"compression"`    // 压缩算法 (none, gzip, snappy, lz4, zstd)
	FlushFrequency time.Duration `mapstructure:"flushFrequency"` // 刷新频率
	Timeout        time.Duration `mapstructure:"timeout"`        // 发送超时时间
}

// EventKafkaConsumerConfig Kafka消费者配置
type EventKafkaConsumerConfig struct {
	GroupID           string        `mapstructure:"groupId"`           // 消费者组ID
	AutoOffsetReset   string        `mapstructure:"autoOffsetReset"`   // 偏移量重置策略 (earliest, latest)
	SessionTimeout    time.Duration `mapstructure:"sessionTimeout"`    // 会话超时时间
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"` // 心跳间隔
}

// Validate 校验事件流配置
func (e *EventFlow) Validate() error {
	switch e.Type {
	case "memory", "":
		return nil
	case "redis":
		if e.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	case "nats":
		if len(e.NATS.URLs) == 0 {
			return fmt.Errorf("nats urls are required")
		}
	case "kafka":
		if len(e.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required")
		}
	default:
		return fmt.Errorf("unsupported eventflow type: %s", e.Type)
	}
	return nil
}
