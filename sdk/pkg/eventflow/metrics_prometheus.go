package eventflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetricsCollector Prometheus 指标收集器
//
// 使用示例：
//
//	collector := eventflow.NewPrometheusMetricsCollector("my_service")
//	publisher := eventflow.NewEventPublisher(broker, eventflow.PublisherOptions{
//	    Metrics: collector,
//	})
//
//	http.Handle("/metrics", promhttp.Handler())
//	go http.ListenAndServe(":9090", nil)
type PrometheusMetricsCollector struct {
	namespace string

	// 发布指标
	publishTotal   *prometheus.CounterVec
	publishFailed  *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec

	// 分发指标
	dispatchTotal   *prometheus.CounterVec
	dispatchFailed  *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec

	// 处理器指标
	handlerFailed *prometheus.CounterVec

	// 降级缓冲指标
	fallbackDepth prometheus.Gauge
	fallbackDrops *prometheus.CounterVec

	// 熔断器指标
	circuitState *prometheus.GaugeVec

	// 健康检查指标
	healthCheckTotal     *prometheus.CounterVec
	healthCheckUnhealthy *prometheus.CounterVec
}

// NewPrometheusMetricsCollector 创建 Prometheus 指标收集器
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "eventflow"
	}

	return &PrometheusMetricsCollector{
		namespace: namespace,

		publishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_publish_total",
				Help:      "Total number of published events",
			},
			[]string{"event_type", "result"},
		),
		publishFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_publish_failed_total",
				Help:      "Total number of events that fell back to the retry buffer",
			},
			[]string{"event_type"},
		),
		publishLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "eventflow_publish_latency_seconds",
				Help:      "Publish latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),

		dispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_dispatch_total",
				Help:      "Total number of dispatched events",
			},
			[]string{"event_type", "result"},
		),
		dispatchFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_dispatch_failed_total",
				Help:      "Total number of dispatches where a critical handler failed",
			},
			[]string{"event_type"},
		),
		dispatchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "eventflow_dispatch_latency_seconds",
				Help:      "Dispatch latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),

		handlerFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_handler_failed_total",
				Help:      "Total number of handler failures",
			},
			[]string{"event_type", "handler"},
		),

		fallbackDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "eventflow_fallback_queue_depth",
				Help:      "Current depth of the fallback retry buffer",
			},
		),
		fallbackDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_fallback_drops_total",
				Help:      "Total number of events permanently dropped from the fallback buffer",
			},
			[]string{"reason"},
		),

		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "eventflow_circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"name"},
		),

		healthCheckTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_health_check_total",
				Help:      "Total number of health checks",
			},
			[]string{"component"},
		),
		healthCheckUnhealthy: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eventflow_health_check_unhealthy_total",
				Help:      "Total number of unhealthy health check results",
			},
			[]string{"component"},
		),
	}
}

func (p *PrometheusMetricsCollector) RecordPublish(eventType string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
		p.publishFailed.WithLabelValues(eventType).Inc()
	}
	p.publishTotal.WithLabelValues(eventType, result).Inc()
	p.publishLatency.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (p *PrometheusMetricsCollector) RecordDispatch(eventType string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
		p.dispatchFailed.WithLabelValues(eventType).Inc()
	}
	p.dispatchTotal.WithLabelValues(eventType, result).Inc()
	p.dispatchLatency.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (p *PrometheusMetricsCollector) RecordHandlerResult(eventType, handlerName string, success bool, _ time.Duration) {
	if !success {
		p.handlerFailed.WithLabelValues(eventType, handlerName).Inc()
	}
}

func (p *PrometheusMetricsCollector) RecordFallbackDepth(depth int) {
	p.fallbackDepth.Set(float64(depth))
}

func (p *PrometheusMetricsCollector) RecordFallbackDrop(reason string) {
	p.fallbackDrops.WithLabelValues(reason).Inc()
}

func (p *PrometheusMetricsCollector) RecordCircuitState(name string, state CircuitState) {
	p.circuitState.WithLabelValues(name).Set(float64(state))
}

func (p *PrometheusMetricsCollector) RecordHealthCheck(component string, healthy bool, _ time.Duration) {
	p.healthCheckTotal.WithLabelValues(component).Inc()
	if !healthy {
		p.healthCheckUnhealthy.WithLabelValues(component).Inc()
	}
}
