package eventflow

import (
	"sync"
	"time"
)

// MetricsCollector 指标收集器接口
// 用于集成 Prometheus、StatsD 等监控系统
//
// 设计原则：
// - 依赖倒置：发布器/订阅器依赖接口而非具体实现
// - 可扩展：支持多种监控系统实现
type MetricsCollector interface {
	// RecordPublish 记录一次事件发布
	RecordPublish(eventType string, success bool, duration time.Duration)

	// RecordDispatch 记录一次事件分发（订阅端整体结果）
	RecordDispatch(eventType string, success bool, duration time.Duration)

	// RecordHandlerResult 记录单个处理器的执行结果
	RecordHandlerResult(eventType, handlerName string, success bool, duration time.Duration)

	// RecordFallbackDepth 记录降级缓冲当前深度
	RecordFallbackDepth(depth int)

	// RecordFallbackDrop 记录降级缓冲的永久丢失（eviction或重试耗尽）
	RecordFallbackDrop(reason string)

	// RecordCircuitState 记录熔断器状态变化
	RecordCircuitState(name string, state CircuitState)

	// RecordHealthCheck 记录健康检查结果
	RecordHealthCheck(component string, healthy bool, duration time.Duration)
}

// NoopMetricsCollector 空实现（默认）
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPublish(string, bool, time.Duration)               {}
func (NoopMetricsCollector) RecordDispatch(string, bool, time.Duration)              {}
func (NoopMetricsCollector) RecordHandlerResult(string, string, bool, time.Duration) {}
func (NoopMetricsCollector) RecordFallbackDepth(int)                                 {}
func (NoopMetricsCollector) RecordFallbackDrop(string)                               {}
func (NoopMetricsCollector) RecordCircuitState(string, CircuitState)                 {}
func (NoopMetricsCollector) RecordHealthCheck(string, bool, time.Duration)           {}

// MemoryMetricsCollector 进程内指标收集器
// 用于测试和轻量级部署，不依赖外部监控系统
type MemoryMetricsCollector struct {
	mu sync.Mutex

	PublishSuccess  map[string]int64
	PublishFailure  map[string]int64
	DispatchSuccess map[string]int64
	DispatchFailure map[string]int64
	HandlerFailures map[string]int64 // eventType:handlerName -> 失败次数
	FallbackDepth   int
	FallbackDrops   map[string]int64 // reason -> 次数
	CircuitStates   map[string]CircuitState
}

// NewMemoryMetricsCollector 创建进程内指标收集器
func NewMemoryMetricsCollector() *MemoryMetricsCollector {
	return &MemoryMetricsCollector{
		PublishSuccess:  make(map[string]int64),
		PublishFailure:  make(map[string]int64),
		DispatchSuccess: make(map[string]int64),
		DispatchFailure: make(map[string]int64),
		HandlerFailures: make(map[string]int64),
		FallbackDrops:   make(map[string]int64),
		CircuitStates:   make(map[string]CircuitState),
	}
}

func (m *MemoryMetricsCollector) RecordPublish(eventType string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.PublishSuccess[eventType]++
	} else {
		m.PublishFailure[eventType]++
	}
}

func (m *MemoryMetricsCollector) RecordDispatch(eventType string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.DispatchSuccess[eventType]++
	} else {
		m.DispatchFailure[eventType]++
	}
}

func (m *MemoryMetricsCollector) RecordHandlerResult(eventType, handlerName string, success bool, _ time.Duration) {
	if success {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HandlerFailures[eventType+":"+handlerName]++
}

func (m *MemoryMetricsCollector) RecordFallbackDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackDepth = depth
}

func (m *MemoryMetricsCollector) RecordFallbackDrop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackDrops[reason]++
}

func (m *MemoryMetricsCollector) RecordCircuitState(name string, state CircuitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CircuitStates[name] = state
}

func (m *MemoryMetricsCollector) RecordHealthCheck(string, bool, time.Duration) {}
