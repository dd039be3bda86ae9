package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/research-reports/internal/platform/envutil"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

const namespace = "reportgen"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	generations   *prometheus.CounterVec
	generationDur *prometheus.HistogramVec
	sections      *prometheus.CounterVec
	stageDur      *prometheus.HistogramVec
	inflight      prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// Current returns the process-wide metrics, or nil when Init was never called.
// All observation methods are nil-safe.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide registry once; later calls return the same instance.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("prometheus metrics initialized", "namespace", namespace)
		}
	})
	return instance
}

// NewMetrics builds an independent registry; tests use it to avoid the global.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total", Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total", Help: "Provider calls by model, path and status.",
		}, []string{"model", "path", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds", Help: "Provider call latency including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 240},
		}, []string{"model", "path"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "generations_total", Help: "Report generation attempts by terminal status.",
		}, []string{"status"}),
		generationDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "generation_duration_seconds", Help: "Wall time of report generation attempts.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "section_results_total", Help: "Section outcomes: analysis, no_evidence or error.",
		}, []string{"outcome"}),
		stageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds", Help: "Pipeline stage latency.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage", "status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "generations_inflight", Help: "Report generations currently running.",
		}),
	}
	reg.MustRegister(m.apiRequests, m.apiLatency, m.llmRequests, m.llmLatency, m.generations,
		m.generationDur, m.sections, m.stageDur, m.inflight)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveLLMRequest(model, path, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.WithLabelValues(model, path, status).Inc()
	m.llmLatency.WithLabelValues(model, path).Observe(dur.Seconds())
}

func (m *Metrics) ObserveGeneration(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(status).Inc()
	m.generationDur.WithLabelValues(status).Observe(dur.Seconds())
}

func (m *Metrics) IncSectionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.sections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDur.WithLabelValues(stage, status).Observe(dur.Seconds())
}

func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) GenerationFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
