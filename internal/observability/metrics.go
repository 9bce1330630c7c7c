package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	docsSearchDuration prometheus.Histogram
	docsQuickHitsTotal prometheus.Counter
	docsChunksTotal    prometheus.Gauge

	paymentChallengedTotal *prometheus.CounterVec
	paymentSettledTotal    *prometheus.CounterVec
	paymentReplayedTotal   prometheus.Counter
	paymentVerifyDuration  prometheus.Histogram

	toolResolutionTotal    *prometheus.CounterVec
	toolResolutionDuration *prometheus.HistogramVec

	turnTotal        *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	turnErrorsTotal  *prometheus.CounterVec
	providerCooldown *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session history load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			docsSearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docs_search_duration_seconds",
					Help:    "Documentation search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			docsQuickHitsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "docs_quick_answer_hits_total",
					Help: "Total documentation queries answered from the quick-answer table.",
				},
			),
			docsChunksTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "docs_chunks_total",
					Help: "Total documentation chunks indexed.",
				},
			),
			paymentChallengedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "payment_challenged_total",
					Help: "Total 402 challenges issued by route and reason.",
				},
				[]string{"route", "reason"},
			),
			paymentSettledTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "payment_settled_total",
					Help: "Total verified payments by route.",
				},
				[]string{"route"},
			),
			paymentReplayedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "payment_replayed_total",
					Help: "Total payment proofs rejected as replays.",
				},
			),
			paymentVerifyDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "payment_verify_duration_seconds",
					Help:    "Facilitator verification duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			toolResolutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_resolution_total",
					Help: "Total tool resolutions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolResolutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_resolution_duration_seconds",
					Help:    "Tool resolution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_turn_total",
					Help: "Total agent turns by provider and status.",
				},
				[]string{"provider", "status"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_turn_duration_seconds",
					Help:    "Agent turn duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			turnErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_turn_errors_total",
					Help: "Total agent turn errors by provider.",
				},
				[]string{"provider"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_cooldown_active",
					Help: "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.docsSearchDuration,
			m.docsQuickHitsTotal,
			m.docsChunksTotal,
			m.paymentChallengedTotal,
			m.paymentSettledTotal,
			m.paymentReplayedTotal,
			m.paymentVerifyDuration,
			m.toolResolutionTotal,
			m.toolResolutionDuration,
			m.turnTotal,
			m.turnDuration,
			m.turnErrorsTotal,
			m.providerCooldown,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	m := getMetrics()
	m.sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	m := getMetrics()
	m.sessionSaveDuration.Observe(duration.Seconds())
}

func RecordDocsSearch(duration time.Duration, quickAnswer bool) {
	m := getMetrics()
	m.docsSearchDuration.Observe(duration.Seconds())
	if quickAnswer {
		m.docsQuickHitsTotal.Inc()
	}
}

func SetDocsChunks(total int) {
	m := getMetrics()
	m.docsChunksTotal.Set(float64(total))
}

func RecordPaymentChallenge(route, reason string) {
	m := getMetrics()
	m.paymentChallengedTotal.WithLabelValues(route, reason).Inc()
}

func RecordPaymentSettled(route string, verifyDuration time.Duration) {
	m := getMetrics()
	m.paymentSettledTotal.WithLabelValues(route).Inc()
	m.paymentVerifyDuration.Observe(verifyDuration.Seconds())
}

func RecordPaymentReplay() {
	m := getMetrics()
	m.paymentReplayedTotal.Inc()
}

func RecordToolResolution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolResolutionTotal.WithLabelValues(tool, status).Inc()
	m.toolResolutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordTurn(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.turnTotal.WithLabelValues(provider, status).Inc()
	m.turnDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.turnErrorsTotal.WithLabelValues(provider).Inc()
	}
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1.0
	}
	m.providerCooldown.WithLabelValues(provider).Set(value)
}
