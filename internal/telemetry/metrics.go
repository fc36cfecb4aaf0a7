package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	streamEvents  *prometheus.CounterVec
	streamDropped prometheus.Counter
	testRuns      *prometheus.CounterVec
	hintLoads     *prometheus.CounterVec
	hintUnlocks   *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codedojo",
			Name:      "stream_events_total",
			Help:      "Streamed test results by status.",
		}, []string{"status"}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codedojo",
			Name:      "stream_lines_dropped_total",
			Help:      "Event lines dropped because their payload could not be decoded.",
		}),
		testRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codedojo",
			Name:      "test_runs_total",
			Help:      "Completed test runs by outcome.",
		}, []string{"outcome"}),
		hintLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codedojo",
			Name:      "hint_loads_total",
			Help:      "Hint ladder loads by result.",
		}, []string{"result"}),
		hintUnlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codedojo",
			Name:      "hint_unlocks_total",
			Help:      "Hint levels unlocked.",
		}, []string{"level"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codedojo",
			Name:      "session_outcomes_total",
			Help:      "Submissions and retirements.",
		}, []string{"kind"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codedojo",
			Name:      "backend_request_seconds",
			Help:      "Backend request latency by endpoint and result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "result"}),
	}
	m.reg.MustRegister(
		m.streamEvents,
		m.streamDropped,
		m.testRuns,
		m.hintLoads,
		m.hintUnlocks,
		m.outcomes,
		m.requests,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) StreamEvent(status string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) StreamDropped() {
	if m == nil {
		return
	}
	m.streamDropped.Inc()
}

func (m *Metrics) TestRun(outcome string) {
	if m == nil {
		return
	}
	m.testRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HintLoad(result string) {
	if m == nil {
		return
	}
	m.hintLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) HintUnlock(level string) {
	if m == nil {
		return
	}
	m.hintUnlocks.WithLabelValues(level).Inc()
}

func (m *Metrics) Outcome(kind string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRequest(endpoint string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.requests.WithLabelValues(endpoint, result).Observe(d.Seconds())
}
