package eventflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

var (
	// 全局消息代理实例
	globalBroker Broker
	globalMutex  sync.RWMutex
	initialized  bool
)

// Factory 消息代理工厂
type Factory struct {
	config *BrokerConfig
}

// NewFactory 创建消息代理工厂
func NewFactory(config *BrokerConfig) *Factory {
	return &Factory{config: config}
}

// CreateBroker 创建消息代理实例
func (f *Factory) CreateBroker() (Broker, error) {
	if f.config == nil {
		return nil, fmt.Errorf("broker config is required")
	}

	if err := f.validateConfig(); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}

	broker, err := NewBroker(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	logger.Info("Broker created successfully", "type", f.config.Type)
	return broker, nil
}

// NewBroker 根据配置创建消息代理
func NewBroker(config *BrokerConfig) (Broker, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch config.Type {
	case "memory", "":
		return NewMemoryBroker(), nil
	case "redis":
		return NewRedisBroker(&config.Redis)
	case "nats":
		return NewNATSBroker(&config.NATS)
	case "kafka":
		return NewKafkaBroker(&config.Kafka)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", config.Type)
	}
}

// validateConfig 验证配置
func (f *Factory) validateConfig() error {
	if f.config.Type == "" {
		f.config.Type = "memory"
	}

	switch f.config.Type {
	case "memory":
		return nil
	case "redis":
		return f.validateRedisConfig()
	case "nats":
		return f.validateNATSConfig()
	case "kafka":
		return f.validateKafkaConfig()
	default:
		return fmt.Errorf("unsupported broker type: %s", f.config.Type)
	}
}

// validateRedisConfig 验证Redis配置
func (f *Factory) validateRedisConfig() error {
	redis := &f.config.Redis

	if redis.Addr == "" {
		redis.Addr = "localhost:6379"
	}
	if redis.DialTimeout == 0 {
		redis.DialTimeout = 5 * time.Second
	}
	if redis.ReadTimeout == 0 {
		redis.ReadTimeout = 3 * time.Second
	}
	if redis.WriteTimeout == 0 {
		redis.WriteTimeout = 3 * time.Second
	}
	if redis.PoolSize == 0 {
		redis.PoolSize = 10
	}

	return nil
}

// validateNATSConfig 验证NATS配置
func (f *Factory) validateNATSConfig() error {
	nats := &f.config.NATS

	if len(nats.URLs) == 0 {
		return fmt.Errorf("nats urls are required")
	}

	if nats.ClientID == "" {
		nats.ClientID = "jxt-workflow"
	}
	if nats.MaxReconnects == 0 {
		nats.MaxReconnects = DefaultMaxReconnectAttempts
	}
	if nats.ReconnectWait == 0 {
		nats.ReconnectWait = DefaultReconnectWait
	}
	if nats.ConnectionTimeout == 0 {
		nats.ConnectionTimeout = DefaultConnectionTimeout
	}

	return nil
}

// validateKafkaConfig 验证Kafka配置
func (f *Factory) validateKafkaConfig() error {
	kafka := &f.config.Kafka

	if len(kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}

	if kafka.Producer.RequiredAcks == 0 {
		kafka.Producer.RequiredAcks = 1
	}
	if kafka.Producer.Compression == "" {
		kafka.Producer.Compression = "snappy"
	}
	if kafka.Producer.FlushFrequency == 0 {
		kafka.Producer.FlushFrequency = 500 * time.Millisecond
	}
	if kafka.Producer.Timeout == 0 {
		kafka.Producer.Timeout = 10 * time.Second
	}
	if kafka.Consumer.GroupID == "" {
		kafka.Consumer.GroupID = "jxt-workflow"
	}
	if kafka.Consumer.AutoOffsetReset == "" {
		kafka.Consumer.AutoOffsetReset = "earliest"
	}
	if kafka.Consumer.SessionTimeout == 0 {
		kafka.Consumer.SessionTimeout = 30 * time.Second
	}
	if kafka.Consumer.HeartbeatInterval == 0 {
		kafka.Consumer.HeartbeatInterval = 3 * time.Second
	}

	return nil
}

// InitializeGlobal 初始化全局消息代理
func InitializeGlobal(config *BrokerConfig) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if initialized {
		return fmt.Errorf("global broker already initialized")
	}

	factory := NewFactory(config)
	broker, err := factory.CreateBroker()
	if err != nil {
		return fmt.Errorf("failed to initialize global broker: %w", err)
	}

	globalBroker = broker
	initialized = true

	logger.Info("Global broker initialized successfully", "type", config.Type)
	return nil
}

// GetGlobal 获取全局消息代理实例
func GetGlobal() Broker {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	if !initialized {
		logger.Warn("Global broker not initialized, returning nil")
		return nil
	}

	return globalBroker
}

// CloseGlobal 关闭全局消息代理
func CloseGlobal() error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if !initialized {
		return nil
	}

	if globalBroker != nil {
		if err := globalBroker.Close(); err != nil {
			return fmt.Errorf("failed to close global broker: %w", err)
		}
	}

	globalBroker = nil
	initialized = false

	logger.Info("Global broker closed successfully")
	return nil
}

// IsInitialized 检查全局消息代理是否已初始化
func IsInitialized() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return initialized
}
