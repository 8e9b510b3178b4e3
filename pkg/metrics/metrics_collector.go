package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 回复加载指标
	replyLoadsTotal    *prometheus.CounterVec
	replyLoadDuration  prometheus.Histogram
	repliesLoadedTotal prometheus.Counter

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 会话指标
	activeSessions prometheus.Gauge

	// 通知指标
	webhookEventsTotal       *prometheus.CounterVec
	notificationDeliveries   *prometheus.CounterVec
	notificationQueueDropped prometheus.Counter
}

// NewMetricsCollector 创建指标收集器，指标注册到 reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		replyLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reply_loads_total",
				Help: "Reply subtree fetches by result",
			},
			[]string{"result"},
		),

		replyLoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reply_load_duration_seconds",
				Help:    "Reply subtree fetch latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
		),

		repliesLoadedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replies_loaded_total",
				Help: "Number of reply records returned by the remote source",
			},
		),

		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_prefix"},
		),

		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_prefix"},
		),

		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "feed_sessions_active",
				Help: "Number of open feed sessions",
			},
		),

		webhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Ingress webhook deliveries by event and outcome",
			},
			[]string{"event", "outcome"},
		),

		notificationDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_deliveries_total",
				Help: "Notification batches delivered by channel and result",
			},
			[]string{"channel", "result"},
		),

		notificationQueueDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notification_queue_dropped_total",
				Help: "Notification tasks dropped because a queue was full or retries ran out",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordReplyLoad 记录一次回复加载
func (m *MetricsCollector) RecordReplyLoad(duration time.Duration, replies int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.replyLoadsTotal.WithLabelValues(result).Inc()
	m.replyLoadDuration.Observe(duration.Seconds())
	m.repliesLoadedTotal.Add(float64(replies))
}

// RecordCacheLookup 记录缓存命中/未命中
func (m *MetricsCollector) RecordCacheLookup(keyPrefix string, hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues(keyPrefix).Inc()
	} else {
		m.cacheMissesTotal.WithLabelValues(keyPrefix).Inc()
	}
}

// SessionOpened / SessionClosed 维护会话数
func (m *MetricsCollector) SessionOpened() { m.activeSessions.Inc() }
func (m *MetricsCollector) SessionClosed() { m.activeSessions.Dec() }

// RecordWebhookEvent 记录 webhook 处理结果
func (m *MetricsCollector) RecordWebhookEvent(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	m.webhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordNotificationDelivery 记录通知投递
func (m *MetricsCollector) RecordNotificationDelivery(channel string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.notificationDeliveries.WithLabelValues(channel, result).Inc()
}

// RecordNotificationDropped 记录被丢弃的通知任务
func (m *MetricsCollector) RecordNotificationDropped() {
	m.notificationQueueDropped.Inc()
}

// GetStatusCategory 获取状态分类
func GetStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// 全局指标收集器实例
var (
	globalCollector *MetricsCollector
	initOnce        sync.Once
)

// GetGlobalCollector 获取全局指标收集器，注册到默认 Registry，只初始化一次
func GetGlobalCollector() *MetricsCollector {
	initOnce.Do(func() {
		globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}
