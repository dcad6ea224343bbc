package eventflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBroker 可控故障的broker桩
type stubBroker struct {
	mu        sync.Mutex
	failing   bool
	published [][]byte
	channels  []string
	callbacks []func(ctx context.Context) error
}

func newStubBroker() *stubBroker {
	return &stubBroker{}
}

func (b *stubBroker) setFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

func (b *stubBroker) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func (b *stubBroker) fireReconnect(ctx context.Context) {
	b.mu.Lock()
	callbacks := append([]func(ctx context.Context) error(nil), b.callbacks...)
	b.mu.Unlock()
	for _, cb := range callbacks {
		_ = cb(ctx)
	}
}

func (b *stubBroker) Publish(ctx context.Context, channel string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return NewBrokerError("publish", errors.New("connection refused"))
	}
	b.published = append(b.published, message)
	b.channels = append(b.channels, channel)
	return nil
}

func (b *stubBroker) Subscribe(ctx context.Context, channel string, handler MessageHandler) error {
	return nil
}

func (b *stubBroker) Unsubscribe(channel string) error { return nil }

func (b *stubBroker) HealthCheck(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return NewBrokerError("health_check", errors.New("connection refused"))
	}
	return nil
}

func (b *stubBroker) RegisterReconnectCallback(callback func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
	return nil
}

func (b *stubBroker) Close() error { return nil }

func fastPublisherOptions() PublisherOptions {
	return PublisherOptions{
		Retry: RetryConfig{
			MaxAttempts:     1,
			BaseDelay:       time.Millisecond,
			MaxDelay:        time.Millisecond,
			ExponentialBase: 2.0,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 100,
			RecoveryTimeout:  time.Minute,
		},
	}
}

func TestPublisherDeliversToDefaultChannel(t *testing.T) {
	broker := newStubBroker()
	p := NewEventPublisher(broker, fastPublisherOptions())

	ok := p.Publish(context.Background(), NewTaskCreatedEvent(1, "审核合同", 10, nil, nil))
	assert.True(t, ok)
	require.Equal(t, 1, broker.publishCount())
	assert.Equal(t, DefaultChannel, broker.channels[0])
	assert.Equal(t, 0, p.FallbackStats().QueueDepth)
}

func TestPublisherUsesExplicitChannel(t *testing.T) {
	broker := newStubBroker()
	p := NewEventPublisher(broker, fastPublisherOptions())

	ok := p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 10, nil, nil), ChannelForEventType(EventTypeTaskCreated))
	assert.True(t, ok)
	require.Equal(t, 1, broker.publishCount())
	assert.Equal(t, "events:task.created", broker.channels[0])
}

func TestPublisherFailureEntersFallbackBuffer(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)
	p := NewEventPublisher(broker, fastPublisherOptions())

	ok := p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 10, nil, nil))
	assert.False(t, ok)

	stats := p.FallbackStats()
	assert.Equal(t, 1, stats.QueueDepth)
	assert.Equal(t, int64(1), stats.TotalStored)
}

func TestPublisherRecoversViaFallbackRetry(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)
	p := NewEventPublisher(broker, fastPublisherOptions())

	env := NewTaskCreatedEvent(1, "t", 10, nil, nil)
	require.False(t, p.Publish(context.Background(), env))
	require.Equal(t, 1, p.FallbackStats().QueueDepth)

	// broker恢复后，一轮重发排空缓冲并保持原通道
	broker.setFailing(false)
	drained := p.RetryFallbackEvents(context.Background())

	assert.Equal(t, 1, drained)
	assert.Equal(t, 0, p.FallbackStats().QueueDepth)
	require.Equal(t, 1, broker.publishCount())
	assert.Equal(t, DefaultChannel, broker.channels[0])

	decoded, err := FromBytes(broker.published[0])
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
}

func TestPublisherReconnectCallbackDrainsFallback(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)
	p := NewEventPublisher(broker, fastPublisherOptions())

	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 10, nil, nil)))
	require.Equal(t, 1, p.FallbackStats().QueueDepth)

	broker.setFailing(false)
	broker.fireReconnect(context.Background())

	assert.Equal(t, 0, p.FallbackStats().QueueDepth)
	assert.Equal(t, 1, broker.publishCount())
}

func TestPublisherSerializationFailureSkipsFallback(t *testing.T) {
	broker := newStubBroker()
	p := NewEventPublisher(broker, fastPublisherOptions())

	env := NewEnvelope(EventTypeTaskCreated, map[string]interface{}{
		"bad": make(chan int),
	})

	ok := p.Publish(context.Background(), env)
	assert.False(t, ok)
	// 序列化错误不可重试修复，不进入缓冲
	assert.Equal(t, 0, p.FallbackStats().QueueDepth)
	assert.Equal(t, 0, broker.publishCount())
}

func TestPublisherNilEnvelope(t *testing.T) {
	p := NewEventPublisher(newStubBroker(), fastPublisherOptions())
	assert.False(t, p.Publish(context.Background(), nil))
}

func TestPublisherCircuitOpensAfterRepeatedFailures(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)

	opts := fastPublisherOptions()
	opts.CircuitBreaker.FailureThreshold = 2
	p := NewEventPublisher(broker, opts)

	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "a", 1, nil, nil)))
	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(2, "b", 1, nil, nil)))
	assert.Equal(t, CircuitOpen, p.CircuitState())

	// 熔断打开：broker不再被调用，事件仍进入缓冲
	broker.setFailing(false)
	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(3, "c", 1, nil, nil)))
	assert.Equal(t, 0, broker.publishCount())
	assert.Equal(t, 3, p.FallbackStats().QueueDepth)
}

func TestPublisherFillsAmbientContext(t *testing.T) {
	broker := newStubBroker()
	opts := fastPublisherOptions()
	opts.SourceSystem = "workflow-api"
	opts.TenantContext = func(ctx context.Context) (*int64, *int64) {
		firm, user := int64(7), int64(3)
		return &firm, &user
	}
	p := NewEventPublisher(broker, opts)

	env := NewEnvelope(EventTypeTaskCreated, nil)
	env.SourceSystem = ""
	require.True(t, p.Publish(context.Background(), env))

	decoded, err := FromBytes(broker.published[0])
	require.NoError(t, err)
	assert.Equal(t, "workflow-api", decoded.SourceSystem)
	require.NotNil(t, decoded.FirmID)
	assert.Equal(t, int64(7), *decoded.FirmID)
	require.NotNil(t, decoded.UserID)
	assert.Equal(t, int64(3), *decoded.UserID)
}

func TestPublisherAmbientContextDoesNotOverrideExplicit(t *testing.T) {
	broker := newStubBroker()
	opts := fastPublisherOptions()
	opts.TenantContext = func(ctx context.Context) (*int64, *int64) {
		firm, user := int64(7), int64(3)
		return &firm, &user
	}
	p := NewEventPublisher(broker, opts)

	env := NewEnvelope(EventTypeTaskCreated, nil).WithFirm(100).WithUser(200)
	require.True(t, p.Publish(context.Background(), env))

	decoded, err := FromBytes(broker.published[0])
	require.NoError(t, err)
	assert.Equal(t, int64(100), *decoded.FirmID)
	assert.Equal(t, int64(200), *decoded.UserID)
}

func TestPublisherPublishMultiple(t *testing.T) {
	broker := newStubBroker()
	p := NewEventPublisher(broker, fastPublisherOptions())

	envelopes := []*Envelope{
		NewTaskCreatedEvent(1, "a", 1, nil, nil),
		NewEnvelope(EventTypeTaskCreated, map[string]interface{}{"bad": make(chan int)}),
		NewTaskCreatedEvent(2, "b", 1, nil, nil),
	}

	results := p.PublishMultiple(context.Background(), envelopes)
	require.Len(t, results, 3)
	assert.True(t, results[0])
	assert.False(t, results[1])
	assert.True(t, results[2])
	assert.Equal(t, 2, broker.publishCount())
}

func TestPublisherHealthCheckStatuses(t *testing.T) {
	broker := newStubBroker()
	opts := fastPublisherOptions()
	opts.WarningDepth = 2
	opts.CriticalDepth = 4
	p := NewEventPublisher(broker, opts)

	status := p.HealthCheck(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, "event_publisher", status.Component)

	// 缓冲深度达到警告阈值
	broker.setFailing(true)
	for i := 0; i < 2; i++ {
		p.Publish(context.Background(), NewTaskCreatedEvent(int64(i), "t", 1, nil, nil))
	}
	broker.setFailing(false)
	status = p.HealthCheck(context.Background())
	assert.Equal(t, StatusWarning, status.Status)

	// 达到严重阈值
	broker.setFailing(true)
	for i := 0; i < 2; i++ {
		p.Publish(context.Background(), NewTaskCreatedEvent(int64(10+i), "t", 1, nil, nil))
	}
	broker.setFailing(false)
	status = p.HealthCheck(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)

	// broker不可达优先级最高
	broker.setFailing(true)
	status = p.HealthCheck(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.NotEmpty(t, status.Errors)
}

func TestPublisherEventStats(t *testing.T) {
	broker := newStubBroker()
	p := NewEventPublisher(broker, fastPublisherOptions())

	require.True(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "a", 1, nil, nil)))
	require.True(t, p.Publish(context.Background(), NewTaskCreatedEvent(2, "b", 1, nil, nil)))

	broker.setFailing(true)
	require.False(t, p.Publish(context.Background(), NewTaskCompletedEvent(3, 1, time.Now())))

	stats := p.GetEventStats()
	require.Contains(t, stats, EventTypeTaskCreated)
	require.Contains(t, stats, EventTypeTaskCompleted)
	assert.Equal(t, int64(2), stats[EventTypeTaskCreated].Published)
	assert.Equal(t, int64(0), stats[EventTypeTaskCreated].Failed)
	assert.Equal(t, int64(1), stats[EventTypeTaskCompleted].Failed)
	assert.False(t, stats[EventTypeTaskCreated].LastPublished.IsZero())
}

func TestPublisherDropsEntryAfterFallbackRetriesExhausted(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)

	opts := fastPublisherOptions()
	opts.Fallback = FallbackStoreConfig{MaxStorage: 10, MaxRetries: 2}
	p := NewEventPublisher(broker, opts)

	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 1, nil, nil)))

	// broker持续故障：两轮重发后条目被永久丢弃
	assert.Equal(t, 0, p.RetryFallbackEvents(context.Background()))
	assert.Equal(t, 1, p.FallbackStats().QueueDepth)
	assert.Equal(t, 0, p.RetryFallbackEvents(context.Background()))
	assert.Equal(t, 0, p.FallbackStats().QueueDepth)
	assert.Equal(t, int64(1), p.FallbackStats().Exhausted)
}

func TestPublisherCloseDrainsFallback(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)
	p := NewEventPublisher(broker, fastPublisherOptions())

	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 1, nil, nil)))
	require.Equal(t, 1, p.FallbackStats().QueueDepth)

	broker.setFailing(false)
	require.NoError(t, p.Close())

	assert.Equal(t, 0, p.FallbackStats().QueueDepth)
	assert.Equal(t, 1, broker.publishCount())
}
