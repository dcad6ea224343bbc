package eventflow

import (
	"context"
	"fmt"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"github.com/robfig/cron/v3"
)

// FallbackScheduler 降级缓冲周期重发调度器
// 按cron表达式周期性调用发布器的RetryFallbackEvents
type FallbackScheduler struct {
	publisher *EventPublisher
	schedule  string
	cron      *cron.Cron
	entryID   cron.EntryID
}

// NewFallbackScheduler 创建调度器
// schedule为cron表达式（支持@every语法），为空时使用默认每30秒一次
func NewFallbackScheduler(publisher *EventPublisher, schedule string) *FallbackScheduler {
	if schedule == "" {
		schedule = DefaultFallbackDrainSchedule
	}

	return &FallbackScheduler{
		publisher: publisher,
		schedule:  schedule,
		cron:      cron.New(),
	}
}

// Start 启动周期重发
func (s *FallbackScheduler) Start(ctx context.Context) error {
	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if s.publisher.FallbackStats().QueueDepth == 0 {
			return
		}
		drained := s.publisher.RetryFallbackEvents(ctx)
		if drained > 0 {
			logger.Info("Scheduled fallback drain completed",
				"drained", drained,
				"remaining", s.publisher.FallbackStats().QueueDepth)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid fallback drain schedule %q: %w", s.schedule, err)
	}

	s.entryID = entryID
	s.cron.Start()

	logger.Info("Fallback drain scheduler started", "schedule", s.schedule)
	return nil
}

// Stop 停止调度，等待执行中的任务完成
func (s *FallbackScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Fallback drain scheduler stopped")
}
