package eventflow

import (
	"fmt"

	"github.com/ChenBigdata421/jxt-workflow/sdk/config"
	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

// InitializeFromConfig 从配置初始化全局消息代理
func InitializeFromConfig(cfg *config.EventFlow) error {
	if cfg == nil {
		return fmt.Errorf("eventflow config is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid eventflow config: %w", err)
	}

	brokerConfig := convertConfig(cfg)

	if err := InitializeGlobal(brokerConfig); err != nil {
		return fmt.Errorf("failed to initialize eventflow from config: %w", err)
	}

	logger.Info("EventFlow initialized from config successfully", "type", cfg.Type)
	return nil
}

// Setup 设置事件流（兼容现有代码）
func Setup(cfg *config.EventFlow) error {
	return InitializeFromConfig(cfg)
}

// convertConfig 转换配置格式
func convertConfig(cfg *config.EventFlow) *BrokerConfig {
	brokerConfig := &BrokerConfig{
		Type: cfg.Type,
		Redis: RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		},
		NATS: NATSConfig{
			URLs:              cfg.NATS.URLs,
			ClientID:          cfg.NATS.ClientID,
			MaxReconnects:     cfg.NATS.MaxReconnects,
			ReconnectWait:     cfg.NATS.ReconnectWait,
			ConnectionTimeout: cfg.NATS.ConnectionTimeout,
		},
		Kafka: KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Producer: KafkaProducerConfig{
				RequiredAcks:   cfg.Kafka.Producer.RequiredAcks,
				Compression:    cfg.Kafka.Producer.Compression,
				FlushFrequency: cfg.Kafka.Producer.FlushFrequency,
				Timeout:        cfg.Kafka.Producer.Timeout,
			},
			Consumer: KafkaConsumerConfig{
				GroupID:           cfg.Kafka.Consumer.GroupID,
				AutoOffsetReset:   cfg.Kafka.Consumer.AutoOffsetReset,
				SessionTimeout:    cfg.Kafka.Consumer.SessionTimeout,
				HeartbeatInterval: cfg.Kafka.Consumer.HeartbeatInterval,
			},
		},
	}

	if brokerConfig.Type == "" {
		brokerConfig.Type = "memory"
	}
	return brokerConfig
}

// PublisherOptionsFromConfig 从配置构建发布端选项
func PublisherOptionsFromConfig(cfg *config.EventFlow) PublisherOptions {
	return PublisherOptions{
		DefaultChannel: cfg.Publisher.DefaultChannel,
		SourceSystem:   cfg.ServiceName,
		CircuitBreaker: CircuitBreakerConfig{
			Name:             cfg.ServiceName,
			FailureThreshold: cfg.Publisher.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  cfg.Publisher.CircuitBreaker.RecoveryTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts:     cfg.Publisher.Retry.MaxAttempts,
			BaseDelay:       cfg.Publisher.Retry.BaseDelay,
			MaxDelay:        cfg.Publisher.Retry.MaxDelay,
			ExponentialBase: cfg.Publisher.Retry.ExponentialBase,
			Jitter:          cfg.Publisher.Retry.Jitter,
		},
		Fallback: FallbackStoreConfig{
			MaxStorage: cfg.Publisher.Fallback.MaxStorage,
			MaxRetries: cfg.Publisher.Fallback.MaxRetries,
		},
		RateLimit: RateLimitConfig{
			Enabled:       cfg.Publisher.RateLimit.Enabled,
			RatePerSecond: cfg.Publisher.RateLimit.RatePerSecond,
			BurstSize:     cfg.Publisher.RateLimit.BurstSize,
		},
		WarningDepth:  cfg.Publisher.Fallback.WarningThreshold,
		CriticalDepth: cfg.Publisher.Fallback.CriticalThreshold,
	}
}

// SubscriberOptionsFromConfig 从配置构建订阅端选项
func SubscriberOptionsFromConfig(cfg *config.EventFlow) SubscriberOptions {
	return SubscriberOptions{
		MaxConcurrency: cfg.Subscriber.MaxConcurrency,
		ProcessTimeout: cfg.Subscriber.ProcessTimeout,
	}
}
