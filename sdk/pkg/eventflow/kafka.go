package eventflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"github.com/IBM/sarama"
)

// kafkaBroker Kafka消息代理
// 每个订阅通道对应一个消费者组会话，发布走同步生产者
type kafkaBroker struct {
	config   *KafkaConfig
	client   sarama.Client
	producer sarama.SyncProducer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool

	callbackMu         sync.Mutex
	reconnectCallbacks []func(ctx context.Context) error
}

// NewKafkaBroker 创建Kafka消息代理
func NewKafkaBroker(config *KafkaConfig) (Broker, error) {
	if config == nil {
		return nil, fmt.Errorf("kafka config cannot be nil")
	}
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if config.Consumer.GroupID == "" {
		config.Consumer.GroupID = "jxt-workflow"
	}

	saramaConfig := sarama.NewConfig()
	if err := configureSarama(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure sarama: %w", err)
	}

	client, err := sarama.NewClient(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("Kafka broker created", "brokers", config.Brokers, "groupID", config.Consumer.GroupID)

	return &kafkaBroker{
		config:   config,
		client:   client,
		producer: producer,
		cancels:  make(map[string]context.CancelFunc),
	}, nil
}

// configureSarama 配置Sarama
func configureSarama(config *sarama.Config, cfg *KafkaConfig) error {
	config.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Producer.RequiredAcks)
	if cfg.Producer.Timeout > 0 {
		config.Producer.Timeout = cfg.Producer.Timeout
	}
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch cfg.Producer.Compression {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	if cfg.Producer.FlushFrequency > 0 {
		config.Producer.Flush.Frequency = cfg.Producer.FlushFrequency
	}

	if cfg.Consumer.SessionTimeout > 0 {
		config.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	}
	if cfg.Consumer.HeartbeatInterval > 0 {
		config.Consumer.Group.Heartbeat.Interval = cfg.Consumer.HeartbeatInterval
	}

	switch cfg.Consumer.AutoOffsetReset {
	case "earliest":
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		config.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	config.Version = sarama.V2_6_0_0
	return nil
}

// Publish 发布消息
func (k *kafkaBroker) Publish(ctx context.Context, channel string, message []byte) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()

	if closed {
		return NewBrokerError("publish", ErrBrokerClosed)
	}

	msg := &sarama.ProducerMessage{
		Topic: channel,
		Value: sarama.ByteEncoder(message),
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return NewBrokerError("publish", err)
	}
	return nil
}

// Subscribe 订阅通道
// 每个通道启动独立的消费循环，Unsubscribe或Close时通过cancel终止
func (k *kafkaBroker) Subscribe(ctx context.Context, channel string, handler MessageHandler) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return NewBrokerError("subscribe", ErrBrokerClosed)
	}
	if _, exists := k.cancels[channel]; exists {
		return fmt.Errorf("already subscribed to channel: %s", channel)
	}

	consumerGroup, err := sarama.NewConsumerGroupFromClient(k.config.Consumer.GroupID, k.client)
	if err != nil {
		return NewBrokerError("subscribe", err)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	k.cancels[channel] = cancel

	consumerHandler := &kafkaConsumerHandler{
		handler: handler,
		topic:   channel,
	}

	go func() {
		defer consumerGroup.Close()

		for {
			select {
			case <-consumeCtx.Done():
				logger.Info("Kafka consumer stopped", "topic", channel)
				return
			default:
				if err := consumerGroup.Consume(consumeCtx, []string{channel}, consumerHandler); err != nil {
					logger.Error("Kafka consumer group error", "topic", channel, "error", err)
					time.Sleep(time.Second) // 避免快速重试
				}
			}
		}
	}()

	logger.Info("Subscribed to Kafka topic", "topic", channel, "groupID", k.config.Consumer.GroupID)
	return nil
}

// Unsubscribe 取消订阅
func (k *kafkaBroker) Unsubscribe(channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	cancel, exists := k.cancels[channel]
	if !exists {
		return nil
	}
	cancel()
	delete(k.cancels, channel)

	logger.Info("Unsubscribed from Kafka topic", "topic", channel)
	return nil
}

// HealthCheck 健康检查
// 至少一个broker可达即视为健康
func (k *kafkaBroker) HealthCheck(ctx context.Context) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()

	if closed {
		return ErrBrokerClosed
	}
	if k.client.Closed() {
		return NewBrokerError("health_check", fmt.Errorf("kafka client is closed"))
	}

	brokers := k.client.Brokers()
	if len(brokers) == 0 {
		return NewBrokerError("health_check", fmt.Errorf("no available brokers"))
	}
	for _, broker := range brokers {
		if connected, _ := broker.Connected(); connected {
			return nil
		}
	}
	return NewBrokerError("health_check", fmt.Errorf("no connected brokers"))
}

// RegisterReconnectCallback 注册重连回调
// sarama内部自动处理重连，回调在健康检查恢复后由上层触发
func (k *kafkaBroker) RegisterReconnectCallback(callback func(ctx context.Context) error) error {
	k.callbackMu.Lock()
	defer k.callbackMu.Unlock()
	k.reconnectCallbacks = append(k.reconnectCallbacks, callback)
	return nil
}

// Close 关闭连接
func (k *kafkaBroker) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true

	for channel, cancel := range k.cancels {
		cancel()
		delete(k.cancels, channel)
	}

	if err := k.producer.Close(); err != nil {
		logger.Warn("Failed to close kafka producer", "error", err)
	}
	if err := k.client.Close(); err != nil {
		return fmt.Errorf("failed to close kafka client: %w", err)
	}
	return nil
}

// kafkaConsumerHandler Kafka消费者组处理器
type kafkaConsumerHandler struct {
	handler MessageHandler
	topic   string
}

func (h *kafkaConsumerHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *kafkaConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费消息
// 处理失败的消息仍然提交偏移量，失败语义由订阅层的处理结果承载
func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if err := h.handler(session.Context(), message.Value); err != nil {
				logger.Error("Kafka message handler failed",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
