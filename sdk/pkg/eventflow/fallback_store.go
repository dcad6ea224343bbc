package eventflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

// FallbackEntry 降级缓冲中的一条待重发记录
type FallbackEntry struct {
	Envelope   *Envelope `json:"envelope"`    // 包络快照
	Channel    string    `json:"channel"`     // 目标通道
	StoredAt   time.Time `json:"stored_at"`   // 入队时间
	RetryCount int       `json:"retry_count"` // 已重试次数
	LastError  string    `json:"last_error,omitempty"`
}

// FallbackStoreConfig 降级缓冲配置
type FallbackStoreConfig struct {
	MaxStorage int // 容量上限，满后FIFO淘汰最旧条目
	MaxRetries int // 单条消息最大重试次数，超过后永久丢弃
}

// FallbackStore 有界重试缓冲（死信队列）
// 存放未能投递的消息，容量受限，FIFO淘汰；丢失是有界且被计数记录的。
// 纯内存实现：进程重启会丢失所有待重发条目（崩溃场景下至多一次投递）。
// 这是可用性优先于投递保证的显式取舍。
type FallbackStore struct {
	mu      sync.Mutex
	entries []*FallbackEntry
	config  FallbackStoreConfig

	// 丢失计数（审计用）
	evictedCount   atomic.Int64 // 容量淘汰
	exhaustedCount atomic.Int64 // 重试耗尽丢弃
	totalStored    atomic.Int64
	totalDrained   atomic.Int64
}

// NewFallbackStore 创建降级缓冲
func NewFallbackStore(config FallbackStoreConfig) *FallbackStore {
	if config.MaxStorage <= 0 {
		config.MaxStorage = DefaultFallbackMaxStorage
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultFallbackMaxRetries
	}

	return &FallbackStore{
		entries: make([]*FallbackEntry, 0),
		config:  config,
	}
}

// Add 追加一条待重发记录（retry_count=0）
// 缓冲已满时淘汰最旧的条目，淘汰作为WARNING审计记录
func (s *FallbackStore) Add(envelope *Envelope, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.config.MaxStorage {
		evicted := s.entries[0]
		s.entries = s.entries[1:]
		s.evictedCount.Add(1)
		logger.Warn("Fallback store full, evicting oldest entry",
			"evictedEventId", evicted.Envelope.EventID,
			"evictedEventType", evicted.Envelope.EventType,
			"maxStorage", s.config.MaxStorage)
	}

	s.entries = append(s.entries, &FallbackEntry{
		Envelope: envelope,
		Channel:  channel,
		StoredAt: time.Now().UTC(),
	})
	s.totalStored.Add(1)

	logger.Debug("Event stored in fallback buffer",
		"eventId", envelope.EventID,
		"eventType", envelope.EventType,
		"channel", channel,
		"queueDepth", len(s.entries))
}

// RetryOperation 对单条记录执行的重发操作
type RetryOperation func(ctx context.Context, entry *FallbackEntry) error

// Retry 对所有排队记录执行一轮重发
// 成功的移除；失败的retry_count+1后重新排队；达到MaxRetries的永久丢弃（计数记录）。
// broker IO期间不持有缓冲锁，允许并发Add。
// 返回本轮成功重发的条数。
func (s *FallbackStore) Retry(ctx context.Context, operation RetryOperation) int {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return 0
	}
	batch := s.entries
	s.entries = make([]*FallbackEntry, 0, len(batch))
	s.mu.Unlock()

	var requeue []*FallbackEntry
	succeeded := 0

	for _, entry := range batch {
		if err := operation(ctx, entry); err != nil {
			entry.RetryCount++
			entry.LastError = err.Error()

			if entry.RetryCount >= s.config.MaxRetries {
				s.exhaustedCount.Add(1)
				logger.Warn("Dropping event after exhausting fallback retries",
					"eventId", entry.Envelope.EventID,
					"eventType", entry.Envelope.EventType,
					"retryCount", entry.RetryCount,
					"lastError", entry.LastError)
				continue
			}

			requeue = append(requeue, entry)
			continue
		}

		succeeded++
		s.totalDrained.Add(1)
	}

	if len(requeue) > 0 {
		s.mu.Lock()
		// 重新排队的条目比重试期间新加入的更旧，放回队首保持FIFO
		s.entries = append(requeue, s.entries...)
		for len(s.entries) > s.config.MaxStorage {
			evicted := s.entries[0]
			s.entries = s.entries[1:]
			s.evictedCount.Add(1)
			logger.Warn("Fallback store full after requeue, evicting oldest entry",
				"evictedEventId", evicted.Envelope.EventID)
		}
		s.mu.Unlock()
	}

	if succeeded > 0 {
		logger.Info("Fallback retry cycle completed",
			"succeeded", succeeded,
			"requeued", len(requeue),
			"remaining", s.Len())
	}

	return succeeded
}

// Len 当前排队条数
func (s *FallbackStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// FallbackStats 缓冲统计
type FallbackStats struct {
	QueueDepth   int   `json:"queueDepth"`
	MaxStorage   int   `json:"maxStorage"`
	TotalStored  int64 `json:"totalStored"`
	TotalDrained int64 `json:"totalDrained"`
	Evicted      int64 `json:"evicted"`   // 容量淘汰总数
	Exhausted    int64 `json:"exhausted"` // 重试耗尽丢弃总数
}

// Stats 缓冲统计快照
func (s *FallbackStore) Stats() FallbackStats {
	return FallbackStats{
		QueueDepth:   s.Len(),
		MaxStorage:   s.config.MaxStorage,
		TotalStored:  s.totalStored.Load(),
		TotalDrained: s.totalDrained.Load(),
		Evicted:      s.evictedCount.Load(),
		Exhausted:    s.exhaustedCount.Load(),
	}
}

// Clear 清空缓冲（测试用）
func (s *FallbackStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}
