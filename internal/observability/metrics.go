package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	apiRequestTotal    *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	mockReplayTotal    *prometheus.CounterVec

	activeSessions          prometheus.Gauge
	transcriptAppendSeconds prometheus.Histogram
	historyLoadSeconds      prometheus.Histogram
	traceWriteTotal         *prometheus.CounterVec

	evalRunTotal    *prometheus.CounterVec
	evalRunDuration prometheus.Histogram

	publishTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			apiRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "api_request_total",
					Help: "Total API dispatches by endpoint, mode (live|mock) and status.",
				},
				[]string{"endpoint", "mode", "status"},
			),
			apiRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "api_request_duration_seconds",
					Help:    "API dispatch duration in seconds by endpoint.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"endpoint"},
			),
			mockReplayTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mock_replay_total",
					Help: "Total fixture replays by fixture kind (json|text|dir).",
				},
				[]string{"fixture_kind"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Session directories currently present in the local store.",
				},
			),
			transcriptAppendSeconds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "transcript_append_duration_seconds",
					Help:    "Transcript append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			historyLoadSeconds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "history_load_duration_seconds",
					Help:    "Session history load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			traceWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trace_write_total",
					Help: "Total plan trace writes by status.",
				},
				[]string{"status"},
			),
			evalRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eval_run_total",
					Help: "Total evaluation runs by terminal status.",
				},
				[]string{"status"},
			),
			evalRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "eval_run_duration_seconds",
					Help:    "Evaluation run duration in seconds, start to terminal status.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
			),
			publishTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "publish_total",
					Help: "Total agent publish operations by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.apiRequestTotal,
			m.apiRequestDuration,
			m.mockReplayTotal,
			m.activeSessions,
			m.transcriptAppendSeconds,
			m.historyLoadSeconds,
			m.traceWriteTotal,
			m.evalRunTotal,
			m.evalRunDuration,
			m.publishTotal,
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

func RecordAPIRequest(endpoint, mode string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.apiRequestTotal.WithLabelValues(endpoint, mode, status).Inc()
	m.apiRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func RecordMockReplay(fixtureKind string) {
	m := getMetrics()
	m.mockReplayTotal.WithLabelValues(fixtureKind).Inc()
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordTranscriptAppend(duration time.Duration) {
	m := getMetrics()
	m.transcriptAppendSeconds.Observe(duration.Seconds())
}

func RecordHistoryLoad(duration time.Duration) {
	m := getMetrics()
	m.historyLoadSeconds.Observe(duration.Seconds())
}

func RecordTraceWrite(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.traceWriteTotal.WithLabelValues(status).Inc()
}

func RecordEvalRun(status string, duration time.Duration) {
	m := getMetrics()
	m.evalRunTotal.WithLabelValues(status).Inc()
	m.evalRunDuration.Observe(duration.Seconds())
}

func RecordPublish(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.publishTotal.WithLabelValues(status).Inc()
}
