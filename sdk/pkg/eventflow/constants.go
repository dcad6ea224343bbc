package eventflow

import "time"

// ========== 通道命名 ==========

const (
	// DefaultChannel 共享默认通道
	// 未指定通道的事件统一发布到该通道
	DefaultChannel = "workflow_events"

	// ChannelPrefix 按事件类型划分的通道前缀
	ChannelPrefix = "events:"
)

// ChannelForEventType 返回事件类型对应的确定性通道名
func ChannelForEventType(eventType string) string {
	return ChannelPrefix + eventType
}

// ========== 包络默认值 ==========

const (
	// DefaultEnvelopeVersion 包络默认版本号
	DefaultEnvelopeVersion = "1.0"

	// DefaultSourceSystem 默认来源系统标识
	DefaultSourceSystem = "jxt-workflow"
)

// ========== 熔断器默认配置 ==========

const (
	// DefaultFailureThreshold 默认连续失败阈值
	// 5次连续失败后熔断，避免偶发性失败导致的误熔断
	DefaultFailureThreshold = 5

	// DefaultRecoveryTimeout 默认熔断恢复等待时间
	// 60秒的冷却窗口给下游足够的恢复时间
	DefaultRecoveryTimeout = 60 * time.Second
)

// ========== 重试默认配置 ==========

const (
	// DefaultRetryMaxAttempts 默认最大尝试次数
	DefaultRetryMaxAttempts = 3

	// DefaultRetryBaseDelay 默认初始退避时间
	DefaultRetryBaseDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay 默认最大退避时间
	// 退避时间封顶，避免长时间等待
	DefaultRetryMaxDelay = 10 * time.Second

	// DefaultRetryExponentialBase 默认退避因子
	// 2.0的退避因子实现指数退避（100ms, 200ms, 400ms, ...）
	DefaultRetryExponentialBase = 2.0
)

// ========== 降级缓冲默认配置 ==========

const (
	// DefaultFallbackMaxStorage 默认缓冲区容量
	// 超过容量后FIFO淘汰最旧的条目（有界的、可审计的数据丢失）
	DefaultFallbackMaxStorage = 1000

	// DefaultFallbackMaxRetries 默认单条消息最大重试次数
	// 超过次数后永久丢弃并计数
	DefaultFallbackMaxRetries = 5

	// DefaultFallbackWarningThreshold 默认队列深度警告阈值
	DefaultFallbackWarningThreshold = 100

	// DefaultFallbackCriticalThreshold 默认队列深度严重阈值
	DefaultFallbackCriticalThreshold = 500

	// DefaultFallbackDrainSchedule 默认周期重发调度表达式
	DefaultFallbackDrainSchedule = "@every 30s"
)

// ========== 订阅端默认配置 ==========

const (
	// DefaultMaxConcurrency 默认最大并发分发数
	// 分发在接收循环之外的worker中执行，慢处理器不会饿死消息接收
	DefaultMaxConcurrency = 10

	// DefaultProcessTimeout 默认单次分发超时
	DefaultProcessTimeout = 30 * time.Second
)

// ========== 统计默认配置 ==========

const (
	// DefaultStatsTTL 默认发布统计保留时间
	// 统计仅用于短周期监控，过期条目在读取时清理
	DefaultStatsTTL = 1 * time.Hour
)

// ========== 重连配置 ==========

const (
	// DefaultMaxReconnectAttempts 默认最大重连次数
	DefaultMaxReconnectAttempts = 10

	// DefaultReconnectWait 默认重连等待时间
	DefaultReconnectWait = 2 * time.Second

	// DefaultConnectionTimeout 默认连接超时
	DefaultConnectionTimeout = 10 * time.Second
)
