package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/insightgraph/internal/executor"
	"github.com/mohammad-safakhou/insightgraph/internal/planner"
)

// Metrics owns the prometheus collectors for the analysis service.
type Metrics struct {
	registry *prometheus.Registry

	taskDuration *prometheus.HistogramVec
	tasksSkipped *prometheus.CounterVec
	synthesis    *prometheus.HistogramVec
	searches     prometheus.Histogram
	searchHits   prometheus.Histogram
	chunks       *prometheus.CounterVec
	llmCalls     *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	requests     *prometheus.CounterVec
}

// New registers every collector on a fresh registry under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "insightgraph"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "task_duration_seconds",
			Help:      "Duration of plan task execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool", "status"}),
		tasksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tasks_skipped_total",
			Help:      "Dependent tasks that were not scheduled.",
		}, []string{"tool"}),
		synthesis: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of final synthesis.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"answered"}),
		searches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "knowledge",
			Name:      "search_duration_seconds",
			Help:      "Duration of knowledge store searches.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		searchHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "knowledge",
			Name:      "search_hits",
			Help:      "Hits returned per knowledge store search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20},
		}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "chunks_total",
			Help:      "Extraction chunks by outcome.",
		}, []string{"status"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Language and embedding capability calls.",
		}, []string{"kind", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of capability calls.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.taskDuration, m.tasksSkipped, m.synthesis,
		m.searches, m.searchHits, m.chunks,
		m.llmCalls, m.llmLatency, m.requests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Executor adapts the collectors to the execution engine's callbacks.
func (m *Metrics) Executor() executor.Metrics {
	return executor.Metrics{
		TaskDuration: func(_ context.Context, task planner.Task, failed bool, elapsed time.Duration) {
			m.taskDuration.WithLabelValues(string(task.Tool), status(failed)).Observe(elapsed.Seconds())
		},
		TaskSkipped: func(_ context.Context, task planner.Task) {
			m.tasksSkipped.WithLabelValues(string(task.Tool)).Inc()
		},
		Synthesis: func(_ context.Context, answered bool, elapsed time.Duration) {
			m.synthesis.WithLabelValues(strconv.FormatBool(answered)).Observe(elapsed.Seconds())
		},
	}
}

// ObserveSearch records one knowledge store search.
func (m *Metrics) ObserveSearch(hits int, elapsed time.Duration) {
	m.searches.Observe(elapsed.Seconds())
	m.searchHits.Observe(float64(hits))
}

// ObserveChunk records the outcome of one extraction chunk.
func (m *Metrics) ObserveChunk(status string) {
	m.chunks.WithLabelValues(status).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeCall(kind string, err error, elapsed time.Duration) {
	m.llmCalls.WithLabelValues(kind, status(err != nil)).Inc()
	m.llmLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func status(failed bool) string {
	if failed {
		return "failed"
	}
	return "ok"
}
