package eventflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: false})

	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow())
	}
	assert.NoError(t, rl.Wait(context.Background()))
}

func TestRateLimiterAllowRespectsBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RatePerSecond: 1, BurstSize: 3})

	// 突发容量内立即放行
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	// 超过突发容量后被拒绝
	assert.False(t, rl.Allow())
}

func TestRateLimiterWaitCancelledByContext(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RatePerSecond: 0.001, BurstSize: 1})
	require.True(t, rl.Allow()) // 耗尽突发容量

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.Error(t, err)
}

func TestMemoryMetricsCollector(t *testing.T) {
	m := NewMemoryMetricsCollector()

	m.RecordPublish(EventTypeTaskCreated, true, time.Millisecond)
	m.RecordPublish(EventTypeTaskCreated, false, time.Millisecond)
	m.RecordDispatch(EventTypeTaskCreated, true, time.Millisecond)
	m.RecordHandlerResult(EventTypeTaskCreated, "NotifyClient", false, time.Millisecond)
	m.RecordHandlerResult(EventTypeTaskCreated, "AuditLog", true, time.Millisecond)
	m.RecordFallbackDepth(5)
	m.RecordFallbackDrop("retries_exhausted")
	m.RecordCircuitState("event_publisher", CircuitOpen)

	assert.Equal(t, int64(1), m.PublishSuccess[EventTypeTaskCreated])
	assert.Equal(t, int64(1), m.PublishFailure[EventTypeTaskCreated])
	assert.Equal(t, int64(1), m.DispatchSuccess[EventTypeTaskCreated])
	assert.Equal(t, int64(1), m.HandlerFailures[EventTypeTaskCreated+":NotifyClient"])
	assert.NotContains(t, m.HandlerFailures, EventTypeTaskCreated+":AuditLog")
	assert.Equal(t, 5, m.FallbackDepth)
	assert.Equal(t, int64(1), m.FallbackDrops["retries_exhausted"])
	assert.Equal(t, CircuitOpen, m.CircuitStates["event_publisher"])
}

func TestPublisherReportsMetrics(t *testing.T) {
	broker := newStubBroker()
	m := NewMemoryMetricsCollector()
	opts := fastPublisherOptions()
	opts.Metrics = m
	p := NewEventPublisher(broker, opts)

	require.True(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 1, nil, nil)))
	broker.setFailing(true)
	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(2, "t", 1, nil, nil)))

	assert.Equal(t, int64(1), m.PublishSuccess[EventTypeTaskCreated])
	assert.Equal(t, int64(1), m.PublishFailure[EventTypeTaskCreated])
	assert.Equal(t, 1, m.FallbackDepth)
}

func TestFallbackSchedulerDrainsPeriodically(t *testing.T) {
	broker := newStubBroker()
	broker.setFailing(true)
	p := NewEventPublisher(broker, fastPublisherOptions())

	require.False(t, p.Publish(context.Background(), NewTaskCreatedEvent(1, "t", 1, nil, nil)))
	require.Equal(t, 1, p.FallbackStats().QueueDepth)

	broker.setFailing(false)

	s := NewFallbackScheduler(p, "@every 100ms")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for p.FallbackStats().QueueDepth > 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not drain fallback buffer")
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, 1, broker.publishCount())
}

func TestFallbackSchedulerRejectsInvalidSchedule(t *testing.T) {
	p := NewEventPublisher(newStubBroker(), fastPublisherOptions())
	s := NewFallbackScheduler(p, "not a schedule")
	assert.Error(t, s.Start(context.Background()))
}
