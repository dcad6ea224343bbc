package restapi

import (
	"net/http"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/eventflow"
	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// EventFlowApi 事件流监控端点
// 暴露发布端/订阅端健康状态、发布统计、降级缓冲状态与事件流文档
type EventFlowApi struct {
	RestApi
	Publisher  *eventflow.EventPublisher
	Subscriber *eventflow.EventSubscriber
	Registry   *eventflow.EventTypeRegistry
}

// RegisterRoutes 注册监控路由
func (e *EventFlowApi) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/eventflow")
	g.Use(logger.SetRequestLogger)
	{
		g.GET("/health", e.Health)
		g.GET("/stats", e.Stats)
		g.GET("/fallback", e.Fallback)
		g.POST("/fallback/retry", e.RetryFallback)
		g.GET("/flows", e.Flows)
		g.GET("/flows/doc", e.FlowDocumentation)
		g.GET("/flows/validate", e.ValidateFlows)
	}
}

// Health 聚合发布端与订阅端的健康状态
// 任一组件unhealthy时返回503，便于接入负载均衡探活
func (e *EventFlowApi) Health(c *gin.Context) {
	ctx := c.Request.Context()

	components := make([]*eventflow.HealthStatus, 0, 2)
	httpCode := http.StatusOK

	if e.Publisher != nil {
		status := e.Publisher.HealthCheck(ctx)
		components = append(components, status)
		if status.Status == eventflow.StatusUnhealthy {
			httpCode = http.StatusServiceUnavailable
		}
	}
	if e.Subscriber != nil {
		status := e.Subscriber.HealthCheck(ctx)
		components = append(components, status)
		if status.Status == eventflow.StatusUnhealthy {
			httpCode = http.StatusServiceUnavailable
		}
	}

	Custom(c, httpCode, gin.H{"components": components})
}

// Stats 发布统计（按事件类型，短TTL）
// 支持?eventType=task.created过滤单一类型
func (e *EventFlowApi) Stats(c *gin.Context) {
	if e.Publisher == nil {
		e.Error(c, http.StatusNotFound, nil, "publisher not configured")
		return
	}

	stats := e.Publisher.GetEventStats()

	if eventType := c.Query("eventType"); eventType != "" {
		s, ok := stats[eventType]
		if !ok {
			e.Error(c, http.StatusNotFound, nil, "no stats for event type: "+eventType)
			return
		}
		e.OK(c, s, "")
		return
	}

	e.OK(c, stats, "")
}

// Fallback 降级缓冲状态
func (e *EventFlowApi) Fallback(c *gin.Context) {
	if e.Publisher == nil {
		e.Error(c, http.StatusNotFound, nil, "publisher not configured")
		return
	}

	e.OK(c, gin.H{
		"circuitState": e.Publisher.CircuitState().String(),
		"fallback":     e.Publisher.FallbackStats(),
	}, "")
}

// RetryFallback 手动触发降级缓冲重发
// ?maxRounds=N可连续执行多轮（默认1轮）
func (e *EventFlowApi) RetryFallback(c *gin.Context) {
	if e.Publisher == nil {
		e.Error(c, http.StatusNotFound, nil, "publisher not configured")
		return
	}

	maxRounds := cast.ToInt(c.DefaultQuery("maxRounds", "1"))
	if maxRounds < 1 {
		maxRounds = 1
	}
	if maxRounds > 10 {
		maxRounds = 10
	}

	ctx := c.Request.Context()
	total := 0
	for i := 0; i < maxRounds; i++ {
		drained := e.Publisher.RetryFallbackEvents(ctx)
		total += drained
		if drained == 0 {
			break
		}
	}

	e.GetLogger(c).Sugar().Infow("Manual fallback retry triggered",
		"rounds", maxRounds, "drained", total)

	e.OK(c, gin.H{
		"drained":   total,
		"remaining": e.Publisher.FallbackStats().QueueDepth,
	}, "")
}

// Flows 已注册的事件流概览
func (e *EventFlowApi) Flows(c *gin.Context) {
	if e.Registry == nil {
		e.Error(c, http.StatusNotFound, nil, "registry not configured")
		return
	}

	eventTypes := e.Registry.RegisteredEventTypes()
	flows := make([]gin.H, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		flow, ok := e.Registry.GetEventFlow(eventType)
		if !ok {
			continue
		}
		flows = append(flows, gin.H{
			"eventType":    flow.EventType,
			"description":  flow.Description,
			"handlers":     len(flow.Handlers),
			"dependencies": flow.Dependencies,
			"chain":        e.Registry.GetEventDependencyChain(eventType),
		})
	}

	e.OK(c, flows, "")
}

// FlowDocumentation 生成事件流文档（text/plain）
func (e *EventFlowApi) FlowDocumentation(c *gin.Context) {
	if e.Registry == nil {
		e.Error(c, http.StatusNotFound, nil, "registry not configured")
		return
	}
	c.String(http.StatusOK, e.Registry.GenerateFlowDocumentation())
}

// ValidateFlows 校验注册表配置
func (e *EventFlowApi) ValidateFlows(c *gin.Context) {
	if e.Registry == nil {
		e.Error(c, http.StatusNotFound, nil, "registry not configured")
		return
	}

	issues := e.Registry.ValidateRegistry()
	e.OK(c, gin.H{
		"valid":  issues.Empty(),
		"issues": issues,
	}, "")
}
