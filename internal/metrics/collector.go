package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 对话轮次指标
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	// 检索指标
	retrievalDuration *prometheus.HistogramVec
	evidenceReturned  *prometheus.HistogramVec
	degradedTurns     *prometheus.CounterVec

	// 护栏指标
	guardrailVerdicts *prometheus.CounterVec

	// 外部能力指标
	capabilityRequests *prometheus.CounterVec
	capabilityRetries  *prometheus.CounterVec
	tokensUsed         *prometheus.CounterVec

	// 摄取与图谱指标
	documentsIngested  *prometheus.CounterVec
	graphBuildDuration prometheus.Histogram
	graphEntities      prometheus.Gauge

	// 会话指标
	activeSessions prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 对话轮次指标
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"strategy", "status"}, // status: ok, blocked, failed
	)

	c.turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	// 检索指标
	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	c.evidenceReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evidence_items_returned",
			Help:      "Number of evidence items attached per turn",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
		[]string{"strategy"},
	)

	c.degradedTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_turns_total",
			Help:      "Turns that fell back to the basic strategy",
		},
		[]string{"requested_strategy"},
	)

	// 护栏指标
	c.guardrailVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_verdicts_total",
			Help:      "Guardrail verdicts by direction and decision",
		},
		[]string{"direction", "decision"},
	)

	// 外部能力指标
	c.capabilityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_requests_total",
			Help:      "External capability calls",
		},
		[]string{"capability", "status"}, // capability: embed, extract, generate, web_search
	)

	c.capabilityRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_retries_total",
			Help:      "Retry attempts against external capabilities",
		},
		[]string{"capability"},
	)

	c.tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"type"}, // type: prompt, completion
	)

	// 摄取与图谱指标
	c.documentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents processed by the ingestion pipeline",
		},
		[]string{"status"}, // status: ready, failed
	)

	c.graphBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_build_duration_seconds",
			Help:      "Knowledge graph build duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300},
		},
	)

	c.graphEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_entities",
			Help:      "Entities in the current knowledge graph snapshot",
		},
	)

	// 会话指标
	c.activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently tracked by conversation memory",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 轮次指标记录
// =============================================================================

// RecordTurn 记录一轮对话
func (c *Collector) RecordTurn(strategy, status string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(strategy, status).Inc()
	c.turnDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordRetrieval 记录一次检索
func (c *Collector) RecordRetrieval(strategy string, items int, degraded bool, requestedStrategy string, duration time.Duration) {
	c.retrievalDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	c.evidenceReturned.WithLabelValues(strategy).Observe(float64(items))
	if degraded {
		c.degradedTurns.WithLabelValues(requestedStrategy).Inc()
	}
}

// RecordGuardrailVerdict 记录护栏裁决
func (c *Collector) RecordGuardrailVerdict(direction, decision string) {
	c.guardrailVerdicts.WithLabelValues(direction, decision).Inc()
}

// =============================================================================
// 🤖 外部能力指标记录
// =============================================================================

// RecordCapability 记录一次外部能力调用
func (c *Collector) RecordCapability(capability, status string) {
	c.capabilityRequests.WithLabelValues(capability, status).Inc()
}

// RecordCapabilityRetry 记录一次重试
func (c *Collector) RecordCapabilityRetry(capability string) {
	c.capabilityRetries.WithLabelValues(capability).Inc()
}

// RecordTokens 记录 token 消耗
func (c *Collector) RecordTokens(promptTokens, completionTokens int) {
	c.tokensUsed.WithLabelValues("prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues("completion").Add(float64(completionTokens))
}

// =============================================================================
// 📚 摄取与图谱指标记录
// =============================================================================

// RecordIngestion 记录一个文档的摄取结果
func (c *Collector) RecordIngestion(status string) {
	c.documentsIngested.WithLabelValues(status).Inc()
}

// RecordGraphBuild 记录一次图谱构建
func (c *Collector) RecordGraphBuild(entities int, duration time.Duration) {
	c.graphBuildDuration.Observe(duration.Seconds())
	c.graphEntities.Set(float64(entities))
}

// SetActiveSessions 记录活动会话数
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}
