package eventflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackStoreAddAndLen(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: 3})

	store.Add(NewEnvelope(EventTypeTaskCreated, nil), "workflow_events")
	store.Add(NewEnvelope(EventTypeTaskCompleted, nil), "workflow_events")

	assert.Equal(t, 2, store.Len())
	stats := store.Stats()
	assert.Equal(t, int64(2), stats.TotalStored)
	assert.Equal(t, int64(0), stats.Evicted)
}

func TestFallbackStoreEvictsOldestWhenFull(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 3, MaxRetries: 3})

	envelopes := make([]*Envelope, 4)
	for i := range envelopes {
		envelopes[i] = NewEnvelope(EventTypeTaskCreated, map[string]interface{}{"seq": i})
		store.Add(envelopes[i], "workflow_events")
	}

	// 第4条入队时淘汰最旧的第1条
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, int64(1), store.Stats().Evicted)

	var remaining []string
	store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		remaining = append(remaining, entry.Envelope.EventID)
		return nil
	})

	assert.NotContains(t, remaining, envelopes[0].EventID)
	assert.Equal(t, []string{envelopes[1].EventID, envelopes[2].EventID, envelopes[3].EventID}, remaining)
}

func TestFallbackStoreRetryDrainsSuccessfulEntries(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: 3})
	store.Add(NewEnvelope(EventTypeTaskCreated, nil), "workflow_events")
	store.Add(NewEnvelope(EventTypeTaskCompleted, nil), "workflow_events")

	drained := store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		return nil
	})

	assert.Equal(t, 2, drained)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int64(2), store.Stats().TotalDrained)
}

func TestFallbackStoreRequeuesFailedEntriesWithIncrementedCount(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: 5})
	store.Add(NewEnvelope(EventTypeTaskCreated, nil), "workflow_events")

	drained := store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		return errors.New("still down")
	})

	assert.Equal(t, 0, drained)
	require.Equal(t, 1, store.Len())

	store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		assert.Equal(t, 1, entry.RetryCount)
		assert.Equal(t, "still down", entry.LastError)
		return nil
	})
	assert.Equal(t, 0, store.Len())
}

func TestFallbackStoreDropsEntryAfterMaxRetries(t *testing.T) {
	maxRetries := 3
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: maxRetries})
	store.Add(NewEnvelope(EventTypeTaskCreated, nil), "workflow_events")

	alwaysFail := func(ctx context.Context, entry *FallbackEntry) error {
		return errors.New("permanent failure")
	}

	// 前maxRetries-1轮失败后仍在队列中
	for i := 0; i < maxRetries-1; i++ {
		store.Retry(context.Background(), alwaysFail)
		assert.Equal(t, 1, store.Len(), "entry should survive round %d", i+1)
	}

	// 恰好第maxRetries轮后永久丢弃
	store.Retry(context.Background(), alwaysFail)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int64(1), store.Stats().Exhausted)

	// 丢弃后不再出现
	store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		t.Fatal("store should be empty")
		return nil
	})
}

func TestFallbackStoreRequeuePreservesFIFO(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: 10})

	first := NewEnvelope(EventTypeTaskCreated, nil)
	second := NewEnvelope(EventTypeTaskCompleted, nil)
	store.Add(first, "workflow_events")
	store.Add(second, "workflow_events")

	// 全部失败，重新排队
	store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		return errors.New("down")
	})

	// 重试期间新加入的条目排在重新排队的后面
	third := NewEnvelope(EventTypeProjectCreated, nil)
	store.Add(third, "workflow_events")

	var order []string
	store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		order = append(order, entry.Envelope.EventID)
		return nil
	})

	assert.Equal(t, []string{first.EventID, second.EventID, third.EventID}, order)
}

func TestFallbackStoreMixedResults(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: 5})

	for i := 0; i < 4; i++ {
		store.Add(NewEnvelope(EventTypeTaskCreated, map[string]interface{}{"seq": i}), "workflow_events")
	}

	// 偶数序号成功，奇数失败
	i := 0
	drained := store.Retry(context.Background(), func(ctx context.Context, entry *FallbackEntry) error {
		i++
		if i%2 == 1 {
			return nil
		}
		return fmt.Errorf("failure %d", i)
	})

	assert.Equal(t, 2, drained)
	assert.Equal(t, 2, store.Len())
}

func TestFallbackStoreClear(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{MaxStorage: 10, MaxRetries: 5})
	store.Add(NewEnvelope(EventTypeTaskCreated, nil), "workflow_events")
	store.Clear()
	assert.Equal(t, 0, store.Len())
}

func TestFallbackStoreDefaults(t *testing.T) {
	store := NewFallbackStore(FallbackStoreConfig{})
	assert.Equal(t, DefaultFallbackMaxStorage, store.config.MaxStorage)
	assert.Equal(t, DefaultFallbackMaxRetries, store.config.MaxRetries)
}
